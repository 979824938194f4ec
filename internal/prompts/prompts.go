// Package prompts holds the fixed prompt texts used outside of skills.
// Skill prompts live in SKILL.md files and are loaded by the registry.
package prompts

import "strings"

// Version is bumped whenever any prompt below changes meaning.
const Version = "2026-09"

// TranscriptSystem frames the audio analysis call.
const TranscriptSystem = "你是一名专业的对话分析师，负责把录音转写为结构化 JSON。只输出 JSON，不要输出任何解释。"

// Transcript asks for the structured transcript. %SCHEMA% is replaced with the
// output JSON schema.
const Transcript = `请仔细聆听这段对话录音并完成以下任务：
1. 逐句转写对话，识别不同说话人，标注为 Speaker_0、Speaker_1 ……，同一个人在全程保持同一标签。
2. 为每句话给出时间戳，格式为 MM:SS（超过一小时时分钟数继续累加，例如 75:10）。
3. 判断哪一位说话人是录音者本人（通常离麦克风最近、音量最大），把其所有语句的 is_me 设为 true，其余为 false。
4. 统计录音者本人的叹气次数 sigh_count 和笑声次数 laugh_count。
5. 给出整体情绪分 mood_score（0-100，越高越积极）以及不超过 100 字的 summary。
6. 列出对话中值得警惕的风险点 risks（没有则为空数组）。

输出必须严格符合以下 JSON Schema：
%SCHEMA%`

// ChunkOffsets is appended when the recording was split. %OFFSETS% lists the
// start time of every chunk.
const ChunkOffsets = `
注意：录音被切分为多个连续片段，按顺序作为多个音频附件提供。各片段在完整录音中的起始时间如下：
%OFFSETS%
每句话的 timestamp 必须是相对完整录音的时间，即在片段内时间的基础上加上该片段的起始时间；同时把该句所在片段的序号（从 1 开始）写入 chunk 字段。说话人标签在所有片段之间保持一致。`

// SceneSystem frames scene classification.
const SceneSystem = "你是一名对话场景分类专家。只输出 JSON。"

// Scene asks for scene categories. %TRANSCRIPT% and %SCHEMA% are substituted.
const Scene = `根据以下对话内容判断其所属场景，可多选：
- workplace：职场（同事、上级、下属、客户之间的沟通）
- family：家庭（父母、配偶、子女、亲属之间的沟通）
- education：教育（老师、学生、家长围绕学习的沟通）
- brainstorm：头脑风暴（创意讨论、方案探讨）
- other：其他

对话内容：
%TRANSCRIPT%

为每个可能的场景给出 0-1 之间的置信度和简短理由，并给出 primary_scene。输出必须符合以下 JSON Schema：
%SCHEMA%`

// SummarySystem frames the who-talked-to-whom summary.
const SummarySystem = "你是一名对话记录员，用第三人称简洁地概括一段对话。"

// Summary asks for a short narrative naming the identified participants.
// %NAMES% and %TRANSCRIPT% are substituted.
const Summary = `已识别的说话人：
%NAMES%

对话内容：
%TRANSCRIPT%

请用不超过 150 字概括：谁和谁在交流、讨论了什么、结论或情绪走向如何。未识别的说话人保留其标签。只输出概括文本。`

// Fill replaces %KEY% placeholders in tmpl.
func Fill(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "%"+k+"%", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
