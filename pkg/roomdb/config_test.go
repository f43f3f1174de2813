package roomdb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Config
		wantErr bool
	}{
		{
			name: "empty payload uses defaults",
			raw:  "",
			want: DefaultConfig(),
		},
		{
			name: "empty object uses defaults",
			raw:  `{}`,
			want: DefaultConfig(),
		},
		{
			name: "null single_state_key uses default",
			raw:  `{"single_state_key": null}`,
			want: DefaultConfig(),
		},
		{
			name: "true selects single-key mode",
			raw:  `{"single_state_key": true}`,
			want: DefaultConfig(),
		},
		{
			name: "false selects per-key mode",
			raw:  `{"single_state_key": false}`,
			want: Config{DefaultRoom: DefaultRoom, EventType: DefaultEventType, Mode: ModePerKey},
		},
		{
			name: "string selects fixed state key",
			raw:  `{"single_state_key": "wibble"}`,
			want: Config{
				DefaultRoom:   DefaultRoom,
				EventType:     DefaultEventType,
				Mode:          ModePerKey,
				FixedStateKey: "wibble",
			},
		},
		{
			name: "empty string selects per-key mode",
			raw:  `{"single_state_key": ""}`,
			want: Config{DefaultRoom: DefaultRoom, EventType: DefaultEventType, Mode: ModePerKey},
		},
		{
			name: "room and state key overrides",
			raw:  `{"default_room": "!abc:localhost", "state_key": "bot.kv"}`,
			want: Config{DefaultRoom: "!abc:localhost", EventType: "bot.kv", Mode: ModeSingleKey},
		},
		{
			name: "event_type wins over state_key",
			raw:  `{"state_key": "bot.kv", "event_type": "bot.store"}`,
			want: Config{DefaultRoom: DefaultRoom, EventType: "bot.store", Mode: ModeSingleKey},
		},
		{
			name:    "number single_state_key",
			raw:     `{"single_state_key": 1}`,
			wantErr: true,
		},
		{
			name:    "blank default room",
			raw:     `{"default_room": "  "}`,
			wantErr: true,
		},
		{
			name:    "blank state key",
			raw:     `{"state_key": ""}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{`,
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseConfig([]byte(testCase.raw))
			if testCase.wantErr {
				if err == nil {
					t.Fatalf("ParseConfig(%s) error = nil, want error", testCase.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig(%s) failed: %v", testCase.raw, err)
			}
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfigValidateRejectsFixedKeyInSingleMode(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.FixedStateKey = "wibble"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected fixed key in single-key mode error")
	}

	cfg = DefaultConfig()
	cfg.Mode = AddressingMode(7)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	if cfg.Mode.String() != "mode(7)" {
		t.Fatalf("mode string = %q, want mode(7)", cfg.Mode.String())
	}
}
