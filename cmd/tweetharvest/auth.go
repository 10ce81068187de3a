package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tweetharvest/pkg/auth"
	"tweetharvest/pkg/ui"
)

var authTokenFile string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the API bearer token",
	Long: `Manage the app-only bearer token used for every request.

The token is looked up in this order:
  - the file given by --token-file or api.token_file (the only source when set)
  - ./bearer_token.txt
  - the TWEETHARVEST_BEARER_TOKEN environment variable
  - the system keychain (when available)
  - an encrypted credentials file in the config directory`,
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a bearer token securely",
	Long: `Store a bearer token in the system keychain, or in the encrypted
credentials file when no keychain is available. The token is read from the
terminal without echo, or from stdin when piped.`,
	Example: `  tweetharvest auth set
  cat token.txt | tweetharvest auth set`,
	Args: cobra.NoArgs,
	RunE: runAuthSet,
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show which bearer token would be used",
	Args:  cobra.NoArgs,
	RunE:  runAuthShow,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored bearer token",
	Args:  cobra.NoArgs,
	RunE:  runAuthDelete,
}

var authGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to obtain a bearer token",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowTokenGuide(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authDeleteCmd)
	authCmd.AddCommand(authGuideCmd)

	authShowCmd.Flags().StringVar(&authTokenFile, "token-file", "", "file holding the bearer token on its first line")
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return err
	}

	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Print("Bearer token: ")
	}
	token, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	cred := &auth.Credential{Name: auth.DefaultName, Token: token}
	if err := manager.Store(cred); err != nil {
		return err
	}

	ui.PrintSuccess("Bearer token stored")
	ui.PrintInfo("Store", cred.Source)
	ui.PrintInfo("Token", auth.MaskToken(cred.Token))
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager(authTokenFile)
	if err != nil {
		return err
	}

	cred, err := manager.Resolve(auth.DefaultName)
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No bearer token found")
			ui.PrintInfo("Searched", strings.Join(manager.Stores(), ", "))
			fmt.Println("\nRun 'tweetharvest auth guide' to see how to get one.")
			return nil
		}
		return err
	}

	ui.PrintInfo("Source", cred.Source)
	ui.PrintInfo("Token", auth.MaskToken(cred.Token))
	if !cred.LastModified.IsZero() {
		ui.PrintInfo("Modified", cred.LastModified.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return err
	}

	if err := manager.Delete(auth.DefaultName); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No stored bearer token to delete")
			return nil
		}
		return err
	}
	ui.PrintSuccess("Bearer token deleted")
	return nil
}

// readSecret reads a line from stdin without echoing when stdin is a terminal
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
