// This file contains functions that add common arguments to the command line.

package arguments

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/bybit-mcp/mcp-deploy/pkg/debug"
)

// AddDebugFlag adds the '--debug' flag to the given set of command line flags.
func AddDebugFlag(fs *pflag.FlagSet) {
	debug.AddFlag(fs)
}

// AddRegionFlag adds the '--region' flag to the given set of command line flags.
func AddRegionFlag(fs *pflag.FlagSet, value *string, defaultValue string) {
	fs.StringVar(
		value,
		"region",
		defaultValue,
		"Google Cloud region for regional resources.",
	)
}

// AddOutputDirFlag adds the '--output-dir' flag to the given set of command line flags.
func AddOutputDirFlag(fs *pflag.FlagSet, value *string) {
	fs.StringVar(
		value,
		"output-dir",
		"",
		"Directory to place generated files (defaults to current directory).",
	)
}

// GetPathFromFlag validates the output directory flag, defaulting to the
// current directory. The returned path is absolute.
func GetPathFromFlag(targetDir string) (string, error) {
	if targetDir == "" {
		pwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrapf(err, "failed to get current directory")
		}

		return pwd, nil
	}

	fPath, err := filepath.Abs(targetDir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve full path")
	}

	sResult, err := os.Stat(fPath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("directory %s does not exist", fPath)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to inspect %s", fPath)
	}
	if !sResult.IsDir() {
		return "", fmt.Errorf("file %s exists and is not a directory", fPath)
	}

	return fPath, nil
}

// AddAssumeYesFlag adds the '--assume-yes' flag to the given set of command line flags.
func AddAssumeYesFlag(fs *pflag.FlagSet, value *bool) {
	fs.BoolVar(
		value,
		"assume-yes",
		false,
		"Skip interactive confirmations, assuming an affirmative answer.",
	)
}
