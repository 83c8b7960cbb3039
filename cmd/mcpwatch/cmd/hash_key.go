package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [token]",
	Short: "Generate SHA256 hash for an admin token",
	Long: `Generate a SHA256 hash of a token for use by a host wrapper that places
mcpwatch behind its own admin authentication.

The output format is "sha256:<hex>".

Example:
  mcpwatch hash-key "my-secret-token"
  # Output: sha256:7d5e8c...

Security note: the token will appear in shell history.
Consider clearing history after use or using an environment variable:
  mcpwatch hash-key "$MY_ADMIN_TOKEN"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		hash := sha256.Sum256([]byte(key))
		fmt.Printf("sha256:%s\n", hex.EncodeToString(hash[:]))
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
