package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/apexwallet/pkg/secretstore"
)

// envFields maps .env keys onto account credential fields.
var envFields = map[string]string{
	"APEX_API_KEY":     secretstore.FieldAPIKey,
	"APEX_SECRET":      secretstore.FieldSecret,
	"APEX_SIGNATURE":   secretstore.FieldSignature,
	"APEX_NONCE":       secretstore.FieldNonce,
	"APEX_TOTP_SECRET": secretstore.FieldTOTPSecret,
}

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("APEXWALLET_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("APEXWALLET_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		accountID = flag.String("account", "", "account id the credentials belong to")
	)
	flag.Parse()

	if strings.TrimSpace(*accountID) == "" {
		fatal(fmt.Errorf("-account is required"))
	}
	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set APEXWALLET_SECRET_KEY or pass -secret-key"))
	}

	env, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}
	fields := map[string]string{}
	var skipped []string
	for k, v := range env {
		field, ok := envFields[k]
		if !ok {
			skipped = append(skipped, k)
			continue
		}
		fields[field] = v
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written, err := ss.SetAccount(*accountID, fields)
	if err != nil {
		fatal(err)
	}

	sort.Strings(skipped)
	if len(skipped) > 0 {
		fmt.Fprintf(os.Stderr, "skipped unknown keys: %s\n", strings.Join(skipped, ", "))
	}
	fmt.Fprintf(os.Stderr, "stored %d credential fields for account %s in %s\n", written, *accountID, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
