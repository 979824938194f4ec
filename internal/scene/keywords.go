package scene

import (
	"fmt"
	"strings"

	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

var keywords = map[string][]string{
	Workplace: {"同事", "老板", "领导", "经理", "上司", "主管", "总监", "下属", "加班", "汇报", "项目", "colleague", "boss", "manager"},
	Family:    {"爸爸", "妈妈", "爸", "妈", "老公", "老婆", "丈夫", "妻子", "孩子", "儿子", "女儿", "父母", "婆婆", "岳母", "mom", "dad", "husband", "wife"},
}

// Supplement adds workplace or family at confidence when the transcript names
// a matching relation and the model did not already report that category.
func Supplement(res Result, turns []transcript.Turn, confidence float64) Result {
	text := joinText(turns)
	for _, cat := range []string{Workplace, Family} {
		if res.Has(cat) {
			continue
		}
		if hit := firstHit(text, keywords[cat]); hit != "" {
			res.Scenes = append(res.Scenes, Scene{
				Category:   cat,
				Confidence: confidence,
				Reasoning:  fmt.Sprintf("keyword %q", hit),
			})
		}
	}
	return res
}

func joinText(turns []transcript.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(strings.ToLower(t.Text))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func firstHit(text string, words []string) string {
	for _, w := range words {
		if strings.Contains(text, w) {
			return w
		}
	}
	return ""
}
