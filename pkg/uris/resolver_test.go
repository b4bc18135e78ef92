package uris

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/db"
)

func testConfig() *bootstrap.ServicesConfig {
	return &bootstrap.ServicesConfig{
		Services: map[string][]bootstrap.Endpoint{
			"ServerURI": {
				{URI: "http://b/", Priority: 2, Version: "1.0.0"},
				{URI: "http://a/", Priority: 1, Version: "2.0.0"},
				{URI: "http://home/", Priority: 5, Version: "1.0.0"},
			},
		},
		Subjects: map[string]map[string][]bootstrap.Endpoint{
			"user-1": {"ServerURI": {{URI: "http://home/", Version: "1.0.0"}}},
		},
		Aliases: map[string]string{"grid": "ServerURI"},
	}
}

func TestStaticResolver_SubjectFirstDeduplicated(t *testing.T) {
	r, err := NewStaticResolver(testConfig(), "")
	require.NoError(t, err)

	got, err := r.ResolveCandidates(context.Background(), "user-1", "ServerURI")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://home/", "http://a/", "http://b/"}, got)

	got, err = r.ResolveCandidates(context.Background(), "", "grid")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a/", "http://b/", "http://home/"}, got)

	got, err = r.ResolveCandidates(context.Background(), "nobody", "Unknown")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStaticResolver_Constraint(t *testing.T) {
	r, err := NewStaticResolver(testConfig(), "^1.0.0")
	require.NoError(t, err)
	got, err := r.ResolveCandidates(context.Background(), "", "ServerURI")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://b/", "http://home/"}, got)

	_, err = NewStaticResolver(testConfig(), "bogus constraint")
	assert.Error(t, err)
}

func TestStaticResolver_DefaultConfig(t *testing.T) {
	r, err := NewStaticResolver(nil, "")
	require.NoError(t, err)
	got, _ := r.ResolveCandidates(context.Background(), "", "ServerURI")
	assert.Equal(t, []string{bootstrap.DefaultServerURI}, got)

	r.Replace(testConfig())
	got, _ = r.ResolveCandidates(context.Background(), "", "ServerURI")
	assert.Len(t, got, 3)
}

type fakeStore struct {
	rows map[string][]db.ServiceURI
	err  error
}

func (f *fakeStore) ListServiceURIs(_ context.Context, subjectID, key string) ([]db.ServiceURI, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[subjectID+"|"+key], nil
}

func TestDBResolver(t *testing.T) {
	store := &fakeStore{rows: map[string][]db.ServiceURI{
		"u|ServerURI": {{URI: "http://mine/", Version: "1.1.0"}},
		"|ServerURI":  {{URI: "http://shared/", Priority: 1, Version: "1.0.0"}, {URI: "http://mine/", Version: "1.1.0"}, {URI: "http://old/", Version: "0.9.0"}},
	}}
	r, err := NewDBResolver(store, ">=1.0.0")
	require.NoError(t, err)

	got, err := r.ResolveCandidates(context.Background(), "u", "ServerURI")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://mine/", "http://shared/"}, got)

	store.err = errors.New("db down")
	_, err = r.ResolveCandidates(context.Background(), "u", "ServerURI")
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	failing, _ := NewDBResolver(&fakeStore{err: errors.New("db down")}, "")
	empty, _ := NewStaticResolver(&bootstrap.ServicesConfig{}, "")
	static, _ := NewStaticResolver(testConfig(), "")

	got, err := Chain{failing, empty, static}.ResolveCandidates(context.Background(), "", "ServerURI")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = Chain{failing, empty}.ResolveCandidates(context.Background(), "", "ServerURI")
	assert.Error(t, err)
}
