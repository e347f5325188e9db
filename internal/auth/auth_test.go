package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-offload/internal/apperr"
)

func TestStaticTokens_Authenticate(t *testing.T) {
	a := NewStaticTokens(map[string]string{"t-alice": "alice", "t-root": "root"}, []string{"root"})

	tests := []struct {
		name  string
		token string
		user  string
		admin bool
		kind  apperr.Kind
	}{
		{name: "user", token: "t-alice", user: "alice"},
		{name: "admin", token: "t-root", user: "root", admin: true},
		{name: "unknown", token: "nope", kind: apperr.KindUnauthenticated},
		{name: "empty", token: "", kind: apperr.KindUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(context.Background(), tt.token)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.user, id.UserID)
			assert.Equal(t, tt.admin, id.Admin)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(r), tt.header)
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "alice"})
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", id.UserID)
}
