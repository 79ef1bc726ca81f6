package config

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTOMLProvider(t *testing.T) {
	t.Run("Should flatten tables into dotted keys", func(t *testing.T) {
		path := writeFile(t, "config.toml", "[db]\nhost = \"x\"\nport = 5432\n")
		layer, err := NewTOMLProvider(path, TOMLOptions{}).Load()
		require.NoError(t, err)
		assert.Equal(t, Origin(path), layer.Origin)
		assert.Equal(t, "x", layer.Entries["db.host"].Value)
		assert.Equal(t, int64(5432), layer.Entries["db.port"].Value)
	})

	t.Run("Should yield an empty layer for a missing optional file", func(t *testing.T) {
		layer, err := NewTOMLProvider(filepath.Join(t.TempDir(), "absent.toml"), TOMLOptions{}).Load()
		require.NoError(t, err)
		assert.Empty(t, layer.Entries)
	})

	t.Run("Should fail for a missing required file", func(t *testing.T) {
		_, err := NewTOMLProvider(filepath.Join(t.TempDir(), "absent.toml"), TOMLOptions{Required: true}).Load()
		require.Error(t, err)
	})

	t.Run("Should fail for unparseable TOML", func(t *testing.T) {
		path := writeFile(t, "bad.toml", "not valid = = toml")
		_, err := NewTOMLProvider(path, TOMLOptions{}).Load()
		require.Error(t, err)
	})

	t.Run("Should report case-colliding tables as duplicates", func(t *testing.T) {
		path := writeFile(t, "dup.toml", "[DB]\nHOST = \"a\"\n[db]\nhost = \"b\"\n")
		_, err := NewTOMLProvider(path, TOMLOptions{}).Load()
		var dup *DuplicateKeyError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "db.host", dup.Key)
	})

	t.Run("Should carry its profile tag", func(t *testing.T) {
		src := NewTOMLProvider("config.dev.toml", TOMLOptions{Profile: "dev"})
		assert.Equal(t, "dev", src.Profile())
	})
}

func TestEnvProvider(t *testing.T) {
	t.Run("Should scan prefixed variables into dotted keys", func(t *testing.T) {
		t.Setenv("TCAPP_DB__HOST", "envhost")
		t.Setenv("TCAPP_DB__MAX_CONNS", "20")
		t.Setenv("UNRELATED", "skip")
		layer, err := NewEnvProvider(EnvOptions{Prefix: "TCAPP_"}).Load()
		require.NoError(t, err)
		assert.Equal(t, "envhost", layer.Entries["db.host"].Value)
		assert.Equal(t, "20", layer.Entries["db.max_conns"].Value)
		_, ok := layer.Entries["unrelated"]
		assert.False(t, ok)
	})

	t.Run("Should honor explicit mappings over the generic transform", func(t *testing.T) {
		t.Setenv("TCAPP_DATABASE_URL", "postgres://x")
		layer, err := NewEnvProvider(EnvOptions{
			Prefix:  "TCAPP_",
			Mapping: map[string]string{"TCAPP_DATABASE_URL": "db.conn_string"},
		}).Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://x", layer.Entries["db.conn_string"].Value)
		assert.Equal(t, "TCAPP_DATABASE_URL", layer.Entries["db.conn_string"].NativeKey)
	})

	t.Run("Should report two variables normalizing to one key", func(t *testing.T) {
		t.Setenv("TCAPP_DB__HOST", "a")
		t.Setenv("TCAPP_DB_HOST", "b")
		_, err := NewEnvProvider(EnvOptions{
			Prefix:  "TCAPP_",
			Mapping: map[string]string{"TCAPP_DB_HOST": "db.host"},
		}).Load()
		var dup *DuplicateKeyError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "db.host", dup.Key)
	})
}

func TestDotenvProvider(t *testing.T) {
	t.Run("Should normalize dotenv keys like environment names", func(t *testing.T) {
		path := writeFile(t, ".env", "APP_DB__HOST=dotenvhost\nAPP_DEBUG=true\nOTHER=skip\n")
		layer, err := NewDotenvProvider(path, DotenvOptions{Prefix: "APP_"}).Load()
		require.NoError(t, err)
		assert.Equal(t, "dotenvhost", layer.Entries["db.host"].Value)
		assert.Equal(t, "true", layer.Entries["debug"].Value)
		_, ok := layer.Entries["other"]
		assert.False(t, ok)
	})

	t.Run("Should yield an empty layer for a missing optional file", func(t *testing.T) {
		layer, err := NewDotenvProvider(filepath.Join(t.TempDir(), ".env"), DotenvOptions{}).Load()
		require.NoError(t, err)
		assert.Empty(t, layer.Entries)
	})

	t.Run("Should fail for a missing required file", func(t *testing.T) {
		_, err := NewDotenvProvider(filepath.Join(t.TempDir(), ".env"), DotenvOptions{Required: true}).Load()
		require.Error(t, err)
	})
}

func TestFlagProvider(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("db-host", "", "")
		fs.Int("db-port", 0, "")
		fs.StringArray("tags", nil, "")
		fs.String("db.name", "", "")
		return fs
	}

	t.Run("Should contribute only flags the user set", func(t *testing.T) {
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--db-host=flaghost"}))
		layer, err := NewFlagProvider(fs, FlagOptions{}).Load()
		require.NoError(t, err)
		assert.Equal(t, "flaghost", layer.Entries["db.host"].Value)
		_, ok := layer.Entries["db.port"]
		assert.False(t, ok)
	})

	t.Run("Should aggregate repeated flags into one slice value", func(t *testing.T) {
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--tags=a", "--tags=b"}))
		layer, err := NewFlagProvider(fs, FlagOptions{}).Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, layer.Entries["tags"].Value)
	})

	t.Run("Should support the direct dotted form", func(t *testing.T) {
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--db.name=app"}))
		layer, err := NewFlagProvider(fs, FlagOptions{}).Load()
		require.NoError(t, err)
		assert.Equal(t, "app", layer.Entries["db.name"].Value)
	})

	t.Run("Should honor explicit flag mappings", func(t *testing.T) {
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--db-port=5433"}))
		layer, err := NewFlagProvider(fs, FlagOptions{
			Mapping: map[string]string{"db-port": "db.listen_port"},
		}).Load()
		require.NoError(t, err)
		assert.Equal(t, "5433", layer.Entries["db.listen_port"].Value)
	})

	t.Run("Should report two flags normalizing to one key naming both", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("db-host", "", "")
		fs.String("db.host", "", "")
		require.NoError(t, fs.Parse([]string{"--db-host=a", "--db.host=b"}))
		_, err := NewFlagProvider(fs, FlagOptions{}).Load()
		var dup *DuplicateKeyError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "db.host", dup.Key)
		assert.ElementsMatch(t, []string{"db-host", "db.host"}, []string{dup.NativeKey, dup.Conflict})
	})
}

type fakeSecretClient struct {
	bundles map[string]map[string]string
	err     error
}

func (f *fakeSecretClient) Fetch(name string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	bundle, ok := f.bundles[name]
	if !ok {
		return nil, fmt.Errorf("secret %q not found", name)
	}
	return bundle, nil
}

func TestSecretProvider(t *testing.T) {
	t.Run("Should normalize bundle keys and tag the origin with the name", func(t *testing.T) {
		client := &fakeSecretClient{bundles: map[string]map[string]string{
			"app": {"DB__PASSWORD": "hunter2", "api.key": "k-123"},
		}}
		layer, err := NewSecretProvider(client, "app", "").Load()
		require.NoError(t, err)
		assert.Equal(t, Origin("secret-store:app"), layer.Origin)
		assert.Equal(t, "hunter2", layer.Entries["db.password"].Value)
		assert.Equal(t, "k-123", layer.Entries["api.key"].Value)
	})

	t.Run("Should surface client failures", func(t *testing.T) {
		client := &fakeSecretClient{err: fmt.Errorf("connection refused")}
		_, err := NewSecretProvider(client, "app", "").Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "app")
	})
}

func TestHTTPSecretClient(t *testing.T) {
	t.Run("Should fetch a bundle from the store", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/secret/app", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"db__password":"hunter2"}}`)
		}))
		defer server.Close()

		bundle, err := NewHTTPSecretClient(server.URL, "tok").Fetch("app")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"db__password": "hunter2"}, bundle)
	})

	t.Run("Should fail on a non-2xx response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		_, err := NewHTTPSecretClient(server.URL, "").Fetch("app")
		require.Error(t, err)
	})
}

func TestStaticProvider(t *testing.T) {
	t.Run("Should accept nested and flat dotted keys", func(t *testing.T) {
		layer, err := NewStaticProvider(map[string]any{
			"db":      map[string]any{"host": "x"},
			"api.key": "k",
		}, "static", "").Load()
		require.NoError(t, err)
		assert.Equal(t, "x", layer.Entries["db.host"].Value)
		assert.Equal(t, "k", layer.Entries["api.key"].Value)
	})
}
