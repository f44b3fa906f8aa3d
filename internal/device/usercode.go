package device

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/realmgate/realmgate/params"
)

// GenerateUserCode draws a grouped human-entered code like XXXX-XXXX
// from an alphabet without visually ambiguous characters.
func GenerateUserCode() (string, error) {
	alphabet := params.UserCodeAlphabet
	groups := make([]string, 0, params.UserCodeGroups)
	var sb strings.Builder
	for g := 0; g < params.UserCodeGroups; g++ {
		sb.Reset()
		for i := 0; i < params.UserCodeGroupSize; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", err
			}
			sb.WriteByte(alphabet[n.Int64()])
		}
		groups = append(groups, sb.String())
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeUserCode makes user input forgiving: case and separators
// are ignored.
func NormalizeUserCode(input string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(input))
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	return strings.ReplaceAll(cleaned, " ", "")
}
