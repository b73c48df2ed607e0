package engine

import "testing"

func TestParseToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data    string
		want    Token
		wantErr bool
	}{
		{data: "review:42", want: Token{Kind: TokenReview, ID: 42}},
		{data: "city:7", want: Token{Kind: TokenCity, ID: 7}},
		{data: "nav:next", want: Token{Kind: TokenNavNext}},
		{data: "nav:prev", want: Token{Kind: TokenNavPrev}},
		{data: "nav:ignore", want: Token{Kind: TokenNavIgnore}},
		{data: "menu", want: Token{Kind: TokenMenu}},
		{data: "profile:change_city", want: Token{Kind: TokenChangeCity}},
		{data: "review:", wantErr: true},
		{data: "review:abc", wantErr: true},
		{data: "review:-1", wantErr: true},
		{data: "city:0", wantErr: true},
		{data: "nav:sideways", wantErr: true},
		{data: "set_city:3", wantErr: true},
		{data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			t.Parallel()
			got, err := ParseToken(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseToken(%q) = %+v, want error", tt.data, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToken(%q) returned error: %v", tt.data, err)
			}
			if got != tt.want {
				t.Errorf("ParseToken(%q) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tokens := []Token{
		{Kind: TokenReview, ID: 9},
		{Kind: TokenCity, ID: 12},
		{Kind: TokenNavNext},
		{Kind: TokenNavPrev},
		{Kind: TokenNavIgnore},
		{Kind: TokenMenu},
		{Kind: TokenChangeCity},
	}
	for _, tok := range tokens {
		got, err := ParseToken(tok.String())
		if err != nil {
			t.Fatalf("ParseToken(%q) returned error: %v", tok.String(), err)
		}
		if got != tok {
			t.Errorf("round trip of %+v produced %+v", tok, got)
		}
	}
}
