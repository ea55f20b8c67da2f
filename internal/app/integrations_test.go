package app

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/vegshop/internal/health"
	"github.com/vladislavdragonenkov/vegshop/internal/lock"
	"github.com/vladislavdragonenkov/vegshop/internal/mail"
	"github.com/vladislavdragonenkov/vegshop/internal/objectstore"
)

func TestInitIntegrations_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilesRoot = t.TempDir()

	integ, err := initIntegrations(context.Background(), cfg, log.WithField("test", "integrations"))
	require.NoError(t, err)
	defer integ.close(log.WithField("test", "integrations"))

	require.IsType(t, &lock.Local{}, integ.locker)
	require.IsType(t, &objectstore.Local{}, integ.store)
	require.IsType(t, &mail.Log{}, integ.mailer)
	require.Equal(t, cfg.FilesRoot, integ.filesRoot)
	require.Empty(t, integ.checkers)

	url, err := integ.store.Upload(context.Background(), domain.Object{Key: "receipts/order-1.pdf", ContentType: "application/pdf", Body: []byte("%PDF")})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/files/receipts/order-1.pdf", url)
}

func TestInitIntegrations_RedisLock(t *testing.T) {
	srv := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.FilesRoot = t.TempDir()
	cfg.LockDriver = LockDriverRedis
	cfg.RedisAddr = srv.Addr()

	logger := log.WithField("test", "redis-lock")
	integ, err := initIntegrations(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer integ.close(logger)

	require.IsType(t, &lock.Redis{}, integ.locker)
	release, err := integ.locker.Acquire(context.Background(), "user-1")
	require.NoError(t, err)
	_, err = integ.locker.Acquire(context.Background(), "user-1")
	require.ErrorIs(t, err, domain.ErrCheckoutInProgress)
	release()

	check := integ.checkers["redis"].Check(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, check.Status)
}

func TestInitIntegrations_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{name: "redis without addr", modify: func(c *Config) { c.LockDriver = LockDriverRedis }, want: "redis addr is required"},
		{name: "redis unreachable", modify: func(c *Config) { c.LockDriver = LockDriverRedis; c.RedisAddr = "127.0.0.1:1" }, want: "ping redis"},
		{name: "unknown lock", modify: func(c *Config) { c.LockDriver = "etcd" }, want: "unsupported lock driver"},
		{name: "unknown object store", modify: func(c *Config) { c.ObjectStoreDriver = "gcs" }, want: "unsupported object store driver"},
		{name: "smtp without host", modify: func(c *Config) { c.MailerDriver = MailerSMTP }, want: "smtp host is required"},
		{name: "unknown mailer", modify: func(c *Config) { c.MailerDriver = "sendgrid" }, want: "unsupported mailer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.FilesRoot = t.TempDir()
			tt.modify(&cfg)

			_, err := initIntegrations(context.Background(), cfg, log.WithField("test", tt.name))
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "unexpected error: %v", err)
		})
	}
}

func TestInitIntegrations_SMTP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilesRoot = t.TempDir()
	cfg.MailerDriver = MailerSMTP
	cfg.SMTPHost = "smtp.example.com"

	integ, err := initIntegrations(context.Background(), cfg, log.WithField("test", "smtp"))
	require.NoError(t, err)
	require.IsType(t, &mail.SMTP{}, integ.mailer)
}
