package classifier

import "testing"

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Verdict
		wantErr bool
	}{
		{
			name: "clean review",
			raw:  `{"is_spam": false, "summary": "Friendly staff and fast service."}`,
			want: Verdict{IsSpam: false, Summary: "Friendly staff and fast service."},
		},
		{
			name: "spam review",
			raw:  `{"is_spam": true, "summary": ""}`,
			want: Verdict{IsSpam: true},
		},
		{
			name: "whitespace around payload",
			raw:  "  \n{\"is_spam\": false, \"summary\": \"  Cozy place.  \"}\n",
			want: Verdict{IsSpam: false, Summary: "Cozy place."},
		},
		{
			name:    "not json",
			raw:     "the model rambled instead of returning JSON",
			wantErr: true,
		},
		{
			name:    "empty response",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseVerdict(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVerdict(%q) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict(%q) returned error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseVerdict(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
