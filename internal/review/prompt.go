package review

import (
	"fmt"
	"strings"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/model"
)

// The review prompts are written in Chinese because the target documents
// are Chinese contracts and forms; the exclusion rules exist to keep the
// model from flagging list numbering and template placeholders, which
// dominate false positives on this document class.

const systemPromptHeader = `你是一位专业的文档审核专家。请识别文本中的真正问题。

允许报告的问题类型：
`

const systemPromptBody = `
⚠️ 极其重要的排除规则（以下情况绝对不是问题，必须忽略）：

1. **序号和编号（最常见的误判！）**：
   - 任何形式的列表序号：1、2、3、(1)、(2)、(一)、(二)、①、②、a、b、A、B 等
   - 孤立的数字或字母：如果段落只包含 "1"、"2"、"a" 等单个字符，这是序号，不是错误
   - 带括号的序号：（1）、（2）、(1)、(2)、[1]、[2] 等
   - 即使解析后序号与内容分离，也不是错误

2. **表单模板占位符**：
   - 日期格式：年/月/日、____年____月____日
   - 金额格式：___元、____元整
   - 空白下划线：_____、______
   - 待填写字段

3. **勾选框和选项符号**：口、□、☐、○、◯ 等

4. **格式化标记**：冒号、破折号、分隔线

5. **合同/表单标准文本**：甲方、乙方、签字、盖章、薪资结算、工资发放 等

🚫 特别强调：不要把以下情况报告为错误：
- 段落内容为单个数字（如 "1"、"2"）→ 这是序号
- 段落内容为 "(1)"、"(2)" → 这是带括号的序号
- 段落内容包含 "年 月 日" → 这是日期占位符
- 段落内容包含 "___元" → 这是金额占位符

只报告真正的内容问题（如：错别字、病句、不当承诺语）。
使用输入中提供的段落索引（如 [0], [1], ...）。
按照要求的 JSON 格式输出结果。
`

// formatInstructions tells the model the exact JSON shape to return; no
// provider-side structured output feature is assumed.
const formatInstructions = `输出必须是一个 JSON 对象，形如：
{"issues": [{"type": "...", "text": "...", "explanation": "...", "suggested_fix": "...", "para_index": 0}]}
其中 text 是有问题的原文片段，para_index 是该段落在本次输入中的索引。
没有问题时输出 {"issues": []}。不要输出 JSON 以外的任何内容。`

// SystemPrompt builds the system message. Custom rule names extend the
// allowed issue types.
func SystemPrompt(rules []model.ReviewRule) string {
	types := []string{
		"- " + model.TypeGrammarSpelling,
		"- " + model.TypeDefinitiveLanguage,
	}
	for _, r := range rules {
		types = append(types, "- "+r.Name)
	}
	return systemPromptHeader + strings.Join(types, "\n") + "\n" + systemPromptBody
}

// Guidance builds the per-chunk review guidance, appending custom rule
// descriptions and up to three examples each.
func Guidance(rules []model.ReviewRule) string {
	lines := []string{
		"审核指南：",
		"- Grammar & Spelling (语法与拼写): 真正的语病、错别字、标点错误、语法错误。",
		"- Definitive Language (绝对化表述): 在正式承诺或保证语境中使用'必须/保证/一定/完全/绝对'等过度确定措辞。",
		"",
		"⚠️ 再次强调：以下不是错误，请跳过：",
		"- 序号（1、2、(1)、(2)、①、②、一、二 等）",
		"- 孤立数字（如段落只有 '1' 或 '2'）→ 这是列表序号",
		"- 日期占位符（年 月 日、____年____月）",
		"- 金额占位符（___元、计 元）",
		"- 勾选框（口、□）",
		"- 合同模板字段（甲方、乙方、签字盖章）",
		"",
		"如果不确定是否是错误，宁可不报告。",
	}
	if len(rules) > 0 {
		lines = append(lines, "", "自定义规则：")
		for _, r := range rules {
			guidance := fmt.Sprintf("- %s: %s", r.Name, r.Description)
			if len(r.Examples) > 0 {
				var examples []string
				for i, ex := range r.Examples {
					if i >= 3 {
						break
					}
					examples = append(examples, fmt.Sprintf("%q", ex.Text))
				}
				guidance += " 示例: " + strings.Join(examples, "; ")
			}
			lines = append(lines, guidance)
		}
	}
	return strings.Join(lines, "\n")
}

// UserMessage lays out one chunk of indexed paragraphs plus the guidance
// and output format.
func UserMessage(chunkIndex int, chunk []model.Paragraph, guidance string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chunk %d. Paragraphs with indices:\n", chunkIndex)
	for i, p := range chunk {
		fmt.Fprintf(&sb, "[%d]%s\n", i, p.Content)
	}
	sb.WriteString("\n")
	sb.WriteString(guidance)
	sb.WriteString("\nReturn issues; if none, return an empty list.\n\n")
	sb.WriteString(formatInstructions)
	return sb.String()
}
