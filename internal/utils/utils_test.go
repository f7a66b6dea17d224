package utils

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_STR", " value ")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BAD_INT", "x")
	t.Setenv("T_FLOAT", "12.5")
	t.Setenv("T_BOOL", "1")
	t.Setenv("T_DUR", "90m")
	t.Setenv("T_SECS", "30")
	t.Setenv("T_LIST", "a, ,b,")

	if got := EnvString("T_STR", "d"); got != "value" {
		t.Errorf("EnvString = %q", got)
	}
	if got := EnvString("T_MISSING", "d"); got != "d" {
		t.Errorf("EnvString default = %q", got)
	}
	if EnvInt("T_INT", 0) != 42 || EnvInt("T_BAD_INT", 7) != 7 {
		t.Errorf("EnvInt wrong")
	}
	if EnvFloat("T_FLOAT", 0) != 12.5 {
		t.Errorf("EnvFloat wrong")
	}
	if !EnvBool("T_BOOL", false) || EnvBool("T_MISSING", false) {
		t.Errorf("EnvBool wrong")
	}
	if EnvDuration("T_DUR", 0) != 90*time.Minute || EnvDuration("T_SECS", 0) != 30*time.Second {
		t.Errorf("EnvDuration wrong")
	}
	if got := EnvList("T_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("EnvList = %v", got)
	}
}

func TestOpenDisabledBackends(t *testing.T) {
	t.Setenv("PG_ENABLE", "false")
	t.Setenv("REDIS_ENABLE", "")
	db, err := OpenPostgresFromEnv(context.Background())
	if db != nil || err != nil {
		t.Fatalf("disabled postgres = %v, %v", db, err)
	}
	if c := OpenRedisFromEnv(context.Background()); c != nil {
		t.Fatalf("disabled redis returned a client")
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_USER", "app")
	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("PG_DB", "")
	if got := BuildPostgresDSNFromEnv(); got != "postgres://app:secret@db:5432/buildings?sslmode=disable" {
		t.Fatalf("dsn = %q", got)
	}
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "tls", "cert.pem")
	key := filepath.Join(dir, "tls", "key.pem")
	if err := EnsureSelfSignedCert(cert, key, []string{"dashboard.local"}); err != nil {
		t.Fatalf("EnsureSelfSignedCert: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	st, _ := os.Stat(cert)
	mod := st.ModTime()
	if err := EnsureSelfSignedCert(cert, key, nil); err != nil {
		t.Fatalf("second call: %v", err)
	}
	st, _ = os.Stat(cert)
	if !st.ModTime().Equal(mod) {
		t.Fatalf("existing certificate was rewritten")
	}
}
