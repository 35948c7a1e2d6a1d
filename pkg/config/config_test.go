package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, "/api/v1", cfg.APIPrefix)
	require.Equal(t, BlobBackendFilesystem, cfg.Attachments.Backend)
	require.Equal(t, int64(10*1024*1024), cfg.Attachments.MaxFileSizeBytes)
	require.Equal(t, 15*time.Minute, cfg.Attachments.SignedURLTTL)
	require.Equal(t, 2*time.Minute, cfg.Summary.CacheTTL)
	require.False(t, cfg.Summary.CacheEnabled)
	require.Equal(t, 3, cfg.Exports.WorkerRetries)
	require.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("BLOB_BACKEND", "GridFS")
	v.Set("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	v.Set("SUMMARY_CACHE_TTL", "not-a-duration")
	v.Set("ATTACHMENT_MAX_FILE_SIZE", -1)

	cfg := fromViper(v)
	require.Equal(t, BlobBackendGridFS, cfg.Attachments.Backend)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, 2*time.Minute, cfg.Summary.CacheTTL)
	require.Equal(t, int64(10*1024*1024), cfg.Attachments.MaxFileSizeBytes)
}

func TestFromViperUnknownBackendFallsBack(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("BLOB_BACKEND", "s3")

	cfg := fromViper(v)
	require.Equal(t, BlobBackendFilesystem, cfg.Attachments.Backend)
}

func TestValidateRejectsOverlappingStorageDirs(t *testing.T) {
	cases := []struct {
		name    string
		blobs   string
		exports string
		wantErr bool
	}{
		{name: "defaults", blobs: "./uploads", exports: "./exports"},
		{name: "same dir", blobs: "./data", exports: "data/", wantErr: true},
		{name: "exports inside blobs", blobs: "/srv/files", exports: "/srv/files/exports", wantErr: true},
		{name: "blobs inside exports", blobs: "/srv/out/uploads", exports: "/srv/out", wantErr: true},
		{name: "shared prefix only", blobs: "/srv/files", exports: "/srv/files-exports"},
		{name: "dotted sibling", blobs: "/srv/files", exports: "/srv/..exports"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set("BLOB_STORAGE_DIR", tc.blobs)
			v.Set("EXPORTS_STORAGE_DIR", tc.exports)

			err := fromViper(v).Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateIgnoresDirsForGridFS(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("BLOB_BACKEND", BlobBackendGridFS)
	v.Set("BLOB_STORAGE_DIR", "./data")
	v.Set("EXPORTS_STORAGE_DIR", "./data")

	require.NoError(t, fromViper(v).Validate())
}
