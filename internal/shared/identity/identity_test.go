package identity

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		tier    string
		want    Identity
		wantErr bool
	}{
		{"free user", "42", "", Identity{UserID: 42}, false},
		{"premium user", "42", "premium", Identity{UserID: 42, Unlimited: true}, false},
		{"tier is case insensitive", " 7 ", "Premium", Identity{UserID: 7, Unlimited: true}, false},
		{"other tier", "42", "basic", Identity{UserID: 42}, false},
		{"missing", "", "premium", Identity{}, true},
		{"not a number", "abc", "", Identity{}, true},
		{"zero", "0", "", Identity{}, true},
		{"negative", "-3", "", Identity{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.userID != "" {
				h.Set(HeaderUserID, tt.userID)
			}
			if tt.tier != "" {
				h.Set(HeaderTier, tt.tier)
			}

			got, err := FromHeaders(h)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingIdentity) {
					t.Errorf("FromHeaders() error = %v, want ErrMissingIdentity", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromHeaders() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FromHeaders() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() on empty context reported an identity")
	}

	ctx := WithContext(context.Background(), Identity{UserID: 9, Unlimited: true})
	got, ok := FromContext(ctx)
	if !ok || got.UserID != 9 || !got.Unlimited {
		t.Errorf("FromContext() = %+v, %v", got, ok)
	}
}
