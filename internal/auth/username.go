package auth

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// fallbackUsername はメールのローカル部に英数字が含まれない場合のベース名。
	fallbackUsername = "user"
	// usernameSuffixRange はサフィックスの上限（排他）。0〜9998の数値を付与する。
	usernameSuffixRange = 9999
	// maxUsernameAttempts はサフィックス付き候補を確認する最大回数。
	maxUsernameAttempts = 5
	// maxUsernameLength はusers.usernameの列長。
	maxUsernameLength = 64
	// maxUsernameBaseLength はサフィックス（最大4桁）を付けても列長に収まるベース名の上限。
	maxUsernameBaseLength = maxUsernameLength - 4
)

var nonUsernameChars = regexp.MustCompile(`[^a-z0-9]`)

// reservedUsernames は固定ルートと衝突するため、そのままでは使わない名前。
// GET /api/profile/me が /api/profile/{username} より優先される。
var reservedUsernames = map[string]bool{
	"me": true,
}

// DeriveUsername はメールアドレスのローカル部からユーザー名を導出する。
// 小文字化して[a-z0-9]以外を除去し、サフィックス分の余地を残して切り詰める。
func DeriveUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	username := nonUsernameChars.ReplaceAllString(strings.ToLower(local), "")
	if username == "" {
		return fallbackUsername
	}
	if len(username) > maxUsernameBaseLength {
		username = username[:maxUsernameBaseLength]
	}
	return username
}

// availableUsername はemailから導出したユーザー名が使用済みまたは予約済みの場合に
// ランダムな数値サフィックスを付与して未使用の候補を探す。
// 候補が尽きた場合は最後の候補を返し、最終判断はストアの一意制約に委ねる。
func (s *Service) availableUsername(ctx context.Context, email string) (string, error) {
	base := DeriveUsername(email)
	candidate := base
	if reservedUsernames[base] {
		candidate = base + strconv.Itoa(s.intN(usernameSuffixRange))
	}
	for attempt := 0; attempt <= maxUsernameAttempts; attempt++ {
		exists, err := s.users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(s.intN(usernameSuffixRange))
	}
	return candidate, nil
}
