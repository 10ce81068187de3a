package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide writes step-by-step instructions for obtaining a bearer token
func ShowTokenGuide(w io.Writer) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "BEARER TOKEN SETUP")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "tweetharvest calls the API v2 with an app-only bearer token.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Open the developer portal")
	fmt.Fprintln(w, "   - Go to https://developer.twitter.com/en/portal/dashboard")
	fmt.Fprintln(w, "   - Select your project and app (create one if needed)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Generate the token")
	fmt.Fprintln(w, "   - Open 'Keys and tokens'")
	fmt.Fprintln(w, "   - Under 'Authentication Tokens', generate or regenerate the Bearer Token")
	fmt.Fprintln(w, "   - Copy it now; the portal shows it only once")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Give it to tweetharvest (first match wins)")
	fmt.Fprintln(w, "   1. --token-file PATH     first line of PATH, must exist")
	fmt.Fprintf(w, "   2. ./%s     used when present\n", DefaultTokenFile)
	fmt.Fprintf(w, "   3. %s\n", TokenEnvVar)
	fmt.Fprintln(w, "   4. tweetharvest auth set  stores it in the system keyring or an encrypted file")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SECURITY:")
	fmt.Fprintln(w, "   - The token grants read access under your app's quota")
	fmt.Fprintln(w, "   - Keep token files out of version control")
	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
}
