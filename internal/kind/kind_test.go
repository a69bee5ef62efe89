package kind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(StorageFailure, nil))
}

func TestOfExtractsKind(t *testing.T) {
	err := Wrap(UnknownInode, errors.New("no such inode"))
	assert.Equal(t, UnknownInode, Of(err))
}

func TestOfUnknownForUnclassifiedError(t *testing.T) {
	assert.Equal(t, Unknown, Of(errors.New("plain error")))
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := errors.New("sqlite busy")
	err := Wrap(StorageFailure, cause)
	assert.ErrorIs(t, err, cause)
}
