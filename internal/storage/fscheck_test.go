package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocalPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fsType   string
		detErr   error
		wantErr  error
		wantFail bool
	}{
		{name: "local", fsType: "apfs"},
		{name: "linux magic hex", fsType: "0xef53"},
		{name: "smb", fsType: "smbfs", wantErr: ErrNetworkFilesystem},
		{name: "nfs uppercase", fsType: "NFS", wantErr: ErrNetworkFilesystem},
		{name: "unsupported platform", detErr: errDetectUnsupported},
		{name: "detector failure", detErr: errors.New("statfs failed"), wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dbPath := filepath.Join(t.TempDir(), "journal.db")
			err := checkLocalPath(dbPath, func(string) (string, error) {
				return tt.fsType, tt.detErr
			})
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "journal.path")
			case tt.wantFail:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckLocalPathWalksToExistingParent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "journal.db")

	var inspected string
	err := checkLocalPath(dbPath, func(path string) (string, error) {
		inspected = path
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected)
}

func TestCheckLocalPathEmpty(t *testing.T) {
	t.Parallel()
	assert.Error(t, CheckLocalPath(""))
}
