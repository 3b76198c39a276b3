// Package google exports ledger entries to a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/sheets"
)

// Client appends ledger entries to a single sheet inside a spreadsheet.
// Rows are only ever appended; reversals compensate deleted transactions.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewFromEnv builds a Client from the environment:
//
//	GOOGLE_SPREADSHEET_ID          target spreadsheet (required)
//	GOOGLE_SHEET_NAME              sheet tab, defaults to "Ledger"
//	GOOGLE_SERVICE_ACCOUNT_JSON    inline service account credentials
//	GOOGLE_SERVICE_ACCOUNT_FILE    path to service account credentials
//	GOOGLE_OAUTH_CLIENT_JSON/FILE  OAuth client, with
//	GOOGLE_OAUTH_TOKEN_JSON/FILE   a token minted by cmd/oauth-init
//
// Service account credentials are preferred; the OAuth pair is the
// fallback for personal spreadsheets.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		return nil, fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
	}
	sheetName := os.Getenv("GOOGLE_SHEET_NAME")
	if sheetName == "" {
		sheetName = "Ledger"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, err
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if credentialsJSON, err := readEnvJSON("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE"); err != nil {
		return nil, err
	} else if credentialsJSON != nil {
		svc, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		)
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil
	}

	return newOAuthSheetsService(ctx)
}

func newOAuthSheetsService(ctx context.Context) (*gsheet.Service, error) {
	clientJSON, err := readEnvJSON("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readEnvJSON("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if clientJSON == nil || tokenJSON == nil {
		return nil, fmt.Errorf("no Google credentials: set GOOGLE_SERVICE_ACCOUNT_JSON/FILE or the GOOGLE_OAUTH_CLIENT and GOOGLE_OAUTH_TOKEN pair")
	}

	oauthCfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse OAuth token: %w", err)
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithTokenSource(oauthCfg.TokenSource(ctx, &token)),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// readEnvJSON returns inline JSON from inlineKey, or the contents of the
// file named by fileKey, or nil when neither is set.
func readEnvJSON(inlineKey, fileKey string) ([]byte, error) {
	if inline := os.Getenv(inlineKey); inline != "" {
		return []byte(inline), nil
	}
	if file := os.Getenv(fileKey); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fileKey, err)
		}
		return data, nil
	}
	return nil, nil
}

// AppendEntry appends one row to the ledger sheet and returns the updated
// range as reference.
func (c *Client) AppendEntry(ctx context.Context, e sheets.Entry) (string, error) {
	kind := "entry"
	if e.Reversal {
		kind = "reversal"
	}
	row := []interface{}{
		e.Date.String(),
		e.Title,
		e.Category.Label(),
		string(e.Type),
		e.Signed.String(),
		e.UserID,
		e.TransactionID,
		kind,
	}

	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}
	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append ledger row: %w", err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}
