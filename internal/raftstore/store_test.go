package raftstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3/raftpb"
)

func TestAppendThenReadBack(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	entries := []raftpb.Entry{
		{Index: 1, Term: 1, Data: []byte("doc-1")},
		{Index: 2, Term: 1, Data: []byte("doc-2")},
	}
	require.NoError(t, s.AppendEntries(entries))

	last, err := s.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	got, err := s.Entries(1, 3, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("doc-1"), got[0].Data)
	assert.Equal(t, []byte("doc-2"), got[1].Data)
}

func TestEntriesBeyondLastIndexReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendEntries([]raftpb.Entry{{Index: 1, Term: 1, Data: []byte("x")}}))

	got, err := s.Entries(1, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFirstIndexAlwaysOne(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	first, err := s.FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
}

func TestAppendEntriesRejectsEmptyDataAndContext(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	err = s.AppendEntries([]raftpb.Entry{{Index: 1, Term: 1, Type: raftpb.EntryNormal}})
	assert.Error(t, err)
}

func TestConfChangeEntryExemptFromEmptyDataRejection(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	err = s.AppendEntries([]raftpb.Entry{{Index: 1, Term: 1, Type: raftpb.EntryConfChange}})
	assert.NoError(t, err)
}

func TestHardStatePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.SetHardState(raftpb.HardState{Term: 4, Vote: 2, Commit: 7}))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	hs, _, err := s2.InitialState()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), hs.Term)
	assert.Equal(t, uint64(7), hs.Commit)
}
