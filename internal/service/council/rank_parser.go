package council

import (
	"regexp"
	"strings"
)

var (
	// 标记必须位于行首，行内提到的 "final ranking:" 不算
	rankingMarker = regexp.MustCompile(`(?im)^[ \t]*[#*>]*[ \t]*final[ \t]+ranking[ \t]*\**[ \t]*:`)
	inlineMarker  = regexp.MustCompile(`FINAL RANKING:`)
	// 1. Response A / 2) **Response B** / - 3. Response C
	rankingLine = regexp.MustCompile(`(?i)^(?:[-*+]\s*)?(?:\*\*)?\s*#?\d+\s*[.)]\s*(?:\*\*)?\s*response\s+([a-z]{1,2})\b`)
)

// ParseRanking 从排名模型的输出中提取有序标签列表。
// 只认最后一个位于行首的 "FINAL RANKING:" 标记之后的编号行，遇到第一条不匹配的非空行即停止；
// 没有行首标记时退回到第一个大写的行内标记。
// 没有标记或一个标签都没解析出来时返回 ok=false。
func ParseRanking(text string) ([]string, bool) {
	var section string
	if locs := rankingMarker.FindAllStringIndex(text, -1); len(locs) > 0 {
		section = text[locs[len(locs)-1][1]:]
	} else if loc := inlineMarker.FindStringIndex(text); loc != nil {
		section = text[loc[1]:]
	} else {
		return nil, false
	}

	var labels []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(section, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimSpace(strings.Trim(line, "*"))
		if line == "" {
			continue
		}
		m := rankingLine.FindStringSubmatch(line)
		if m == nil {
			break
		}
		label := labelPrefix + strings.ToUpper(m[1])
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return nil, false
	}
	return labels, true
}
