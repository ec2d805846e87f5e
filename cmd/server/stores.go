package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/router-for-me/oauth-callback/internal/store"
	log "github.com/sirupsen/logrus"
)

// storeSelection describes the credential backend chosen from the environment.
type storeSelection struct {
	kind  string
	store store.Store
	// watchDir is the directory holding record files, when the backend is file based.
	watchDir string
	close    func() error
}

type envLookup func(keys ...string) (string, bool)

func newEnvLookup(lookup func(string) (string, bool)) envLookup {
	return func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}
}

// selectStore prefers Postgres, then object storage, then git, and falls back to the
// file store rooted at authDir. baseDir hosts the git working tree when no path is given.
func selectStore(ctx context.Context, lookupEnv envLookup, authDir, baseDir string) (*storeSelection, error) {
	if dsn, ok := lookupEnv("PGSTORE_DSN", "pgstore_dsn"); ok {
		schema, _ := lookupEnv("PGSTORE_SCHEMA", "pgstore_schema")
		table, _ := lookupEnv("PGSTORE_TABLE", "pgstore_table")
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		pg, err := store.NewPostgresStore(connectCtx, store.PostgresStoreConfig{DSN: dsn, Schema: schema, Table: table})
		if err != nil {
			return nil, err
		}
		return &storeSelection{kind: "postgres", store: pg, close: pg.Close}, nil
	}

	if endpoint, ok := lookupEnv("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); ok {
		resolved, useSSL, err := resolveObjectEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
		accessKey, _ := lookupEnv("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key")
		secretKey, _ := lookupEnv("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key")
		bucket, _ := lookupEnv("OBJECTSTORE_BUCKET", "objectstore_bucket")
		region, _ := lookupEnv("OBJECTSTORE_REGION", "objectstore_region")
		prefix, _ := lookupEnv("OBJECTSTORE_PREFIX", "objectstore_prefix")
		obj, err := store.NewObjectStore(store.ObjectStoreConfig{
			Endpoint:  resolved,
			Bucket:    bucket,
			AccessKey: accessKey,
			SecretKey: secretKey,
			Region:    region,
			Prefix:    prefix,
			UseSSL:    useSSL,
			PathStyle: true,
		})
		if err != nil {
			return nil, err
		}
		return &storeSelection{kind: "object", store: obj}, nil
	}

	remote, hasRemote := lookupEnv("GITSTORE_GIT_URL", "gitstore_git_url")
	localPath, hasLocal := lookupEnv("GITSTORE_LOCAL_PATH", "gitstore_local_path")
	if hasRemote || hasLocal {
		if !hasLocal {
			localPath = filepath.Join(baseDir, "gitstore")
		}
		user, _ := lookupEnv("GITSTORE_GIT_USERNAME", "gitstore_git_username")
		token, _ := lookupEnv("GITSTORE_GIT_TOKEN", "gitstore_git_token")
		git := store.NewGitStore(store.GitStoreConfig{
			RepoDir:  localPath,
			Remote:   remote,
			Username: user,
			Password: token,
		})
		return &storeSelection{kind: "git", store: git, watchDir: git.RecordDir()}, nil
	}

	return &storeSelection{kind: "file", store: store.NewFileStore(authDir), watchDir: authDir}, nil
}

// resolveObjectEndpoint strips an optional scheme from endpoint and reports whether TLS applies.
func resolveObjectEndpoint(endpoint string) (string, bool, error) {
	resolved := strings.TrimSpace(endpoint)
	useSSL := true
	if strings.Contains(resolved, "://") {
		parsed, errParse := url.Parse(resolved)
		if errParse != nil {
			return "", false, fmt.Errorf("parse object store endpoint %q: %w", endpoint, errParse)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return "", false, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("object store endpoint %q is missing host information", endpoint)
		}
		resolved = parsed.Host
		if parsed.Path != "" && parsed.Path != "/" {
			resolved = strings.TrimSuffix(parsed.Host+parsed.Path, "/")
		}
	}
	return strings.TrimRight(resolved, "/"), useSSL, nil
}

func (s *storeSelection) Close() {
	if s == nil || s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		log.WithError(err).Warnf("failed to close %s credential store", s.kind)
	}
}
