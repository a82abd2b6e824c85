package snapshot

import (
	"crypto/sha1"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignSortsAndExcludes(t *testing.T) {
	u := New("demo", "key123", "secret", "faceattend")

	params := map[string]string{
		"timestamp": "1700000000",
		"folder":    "faceattend",
		"api_key":   "key123",
		"file":      "data:image/jpeg;base64,abc",
	}

	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=faceattend&timestamp=1700000000secret")))
	assert.Equal(t, want, u.sign(params))
}

func TestSignSkipsEmptyValues(t *testing.T) {
	u := New("demo", "key123", "secret", "")

	params := map[string]string{
		"timestamp": "1700000000",
		"folder":    "",
	}

	want := fmt.Sprintf("%x", sha1.Sum([]byte("timestamp=1700000000secret")))
	assert.Equal(t, want, u.sign(params))
}
