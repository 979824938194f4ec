package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const workplaceDoc = "---\n" +
	"name: 职场丛林法则\n" +
	"description: 职场沟通策略\n" +
	"category: workplace\n" +
	"priority: 80\n" +
	"version: 1.2.0\n" +
	"keywords: [老板, 同事]\n" +
	"---\n" +
	"# 职场丛林法则\n\n" +
	"## Prompt模板\n\n" +
	"```prompt\n" +
	"会话 {session_id} 用户 {user_id}\n" +
	"对话：{transcript_json}\n" +
	"历史：{memory_context}\n" +
	"```\n"

const emotionDoc = "---\n" +
	"name: 情绪识别\n" +
	"category: emotion\n" +
	"---\n" +
	"## Prompt模板\n" +
	"```\n" +
	"判断情绪：{transcript_json}\n" +
	"```\n"

func writeSkill(t *testing.T, root, id, doc string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefinitionFile), []byte(doc), 0o644))
	return dir
}
