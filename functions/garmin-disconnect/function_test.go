package garmindisconnect

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/testing/mocks"
)

func TestDisconnectClearsCredentialsKeepsHistory(t *testing.T) {
	db := &mocks.MockDatabase{}
	fwCtx := &framework.Context{
		Service: &bootstrap.Service{DB: db},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		UserID:  "user-1",
	}

	r := httptest.NewRequest("POST", "/", nil)
	out, err := disconnectHandler(context.Background(), r, fwCtx)
	require.NoError(t, err)
	assert.Equal(t, disconnectResponse{Status: "disconnected"}, out)

	require.Len(t, db.ConfigUpdates, 1)
	update := db.ConfigUpdates[0]
	assert.Equal(t, false, update["connected"])
	assert.Equal(t, shared.DeleteField, update["garthSession"])
	assert.Equal(t, shared.DeleteField, update["garminEmail"])
	assert.Equal(t, shared.ServerTimestamp, update["disconnectedAt"])
}
