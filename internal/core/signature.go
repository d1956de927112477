package core

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"pkg-exporter/internal/ports"
	"pkg-exporter/internal/types"
)

const packageFileSuffix = ".rpm"

// signatureKeyIDPattern extracts the signing key id from an inspector
// signature line. The grammar is permissive: a "Signature" label followed
// by whitespace or colons, an optional free-form prefix ending in
// "Key ID ", and the key token itself, optionally parenthesized (the
// inspector prints "(none)" for unsigned packages). Matching is
// case-insensitive.
var signatureKeyIDPattern = regexp.MustCompile(
	`(?i)Signature[\s:]+(.*Key ID )?\(?(?P<key_id>\w+)\)?`)

// ParseSignatureKeyID extracts the lowercased key id token from one
// signature line. The second return is false when the line does not
// match the grammar.
func ParseSignatureKeyID(line string) (string, bool) {
	match := signatureKeyIDPattern.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	keyID := match[signatureKeyIDPattern.SubexpIndex("key_id")]
	if keyID == "" {
		return "", false
	}
	return strings.ToLower(keyID), true
}

// signatureLine returns the first inspector output line starting with
// the "Signature" token.
func signatureLine(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Signature") {
			return line, true
		}
	}
	return "", false
}

// SignatureVerifier classifies every package file in an exported
// directory by signature status. The scan never stops early; all
// violations of a batch are collected before reporting.
type SignatureVerifier struct {
	Inspector ports.PackageInspectorPort
	// Subkeys maps an authorized owner key id to the subkey ids
	// delegated to sign on its behalf.
	Subkeys map[string][]string
}

func NewSignatureVerifier(inspector ports.PackageInspectorPort, subkeys map[string][]string) SignatureVerifier {
	return SignatureVerifier{Inspector: inspector, Subkeys: subkeys}
}

// Verify scans every package file directly under dir and returns the
// accumulated violation report. Only a directory read failure is an
// error; per-file inspector failures land in the Errored set.
func (v SignatureVerifier) Verify(ctx context.Context, dir string, authorized []types.SignKey) (types.ViolationReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.ViolationReport{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read exported directory").
			WithCause(err)
	}

	keyIDs := make([]string, 0, len(authorized))
	for _, key := range authorized {
		keyIDs = append(keyIDs, strings.ToLower(key.KeyID))
	}
	report := types.ViolationReport{
		WrongKey:       map[string]string{},
		AuthorizedKeys: keyIDs,
	}
	logger := log.Ctx(ctx)

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), packageFileSuffix) {
			logger.Debug().Str("path", path).Msg("skipping non-package file")
			continue
		}
		result, err := v.Inspector.Inspect(ctx, path)
		if err != nil || result.ExitCode != 0 {
			logger.Error().
				Str("path", path).
				Str("stderr", inspectStderr(result, err)).
				Msg("cannot get information about package")
			report.Errored = append(report.Errored, path)
			continue
		}
		line, ok := signatureLine(result.Stdout)
		if !ok {
			logger.Error().Str("path", path).Msg("no information about package signature")
			report.Errored = append(report.Errored, path)
			continue
		}
		keyID, ok := ParseSignatureKeyID(line)
		if !ok {
			logger.Error().Str("path", path).Msg("cannot detect package signature key")
			report.Errored = append(report.Errored, path)
			continue
		}
		switch {
		case keyID == "none":
			logger.Error().Str("path", path).Msg("package is not signed")
			report.Unsigned = append(report.Unsigned, path)
		case contains(keyIDs, keyID):
			// Signed with an authorized platform key.
		case v.signedWithSubkey(keyID):
			// Delegated signing via a known subkey.
		default:
			logger.Error().
				Str("path", path).
				Str("key_id", keyID).
				Strs("expected", keyIDs).
				Msg("package is signed with wrong key")
			report.WrongKey[path] = keyID
		}
	}
	return report, nil
}

func (v SignatureVerifier) signedWithSubkey(keyID string) bool {
	for _, subkeys := range v.Subkeys {
		for _, subkey := range subkeys {
			if strings.EqualFold(subkey, keyID) {
				return true
			}
		}
	}
	return false
}

func inspectStderr(result ports.InspectResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(strings.Join([]string{result.Stdout, result.Stderr}, "\n"))
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
