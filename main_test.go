package main

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "main-test-secret", ExpireTime: time.Hour}}

	tok, err := issueToken(cfg, "42:teacher")
	require.NoError(t, err)
	claims, err := util.ParseJWT(tok, cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Teacher, claims.Role)

	tok, err = issueToken(cfg, "7")
	require.NoError(t, err)
	claims, err = util.ParseJWT(tok, cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, model.Student, claims.Role)

	for _, bad := range []string{"0", "abc:student", "7:root"} {
		_, err := issueToken(cfg, bad)
		assert.Error(t, err, bad)
	}
}
