package ai

import (
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/interview-coach/backend/internal/model/interview"
)

// 模板变量名，需与 interviewerPrompt 中的占位符保持一致。
const (
	varResumeText     = "resume_text"
	varJobDescription = "job_description"
	varTranscript     = "transcript"
)

// interviewerPrompt 是面试官角色的系统提示词。
const interviewerPrompt = `You are a professional interviewer conducting a mock job interview.

Candidate Resume:
{resume_text}

Job Description:
{job_description}

Instructions:
- Ask one focused question at a time
- Cover behavioral, technical, and situational questions relevant to the role
- After the candidate answers, ask a natural follow-up or move to the next area
- Be encouraging but realistic
- Start by warmly greeting the candidate and asking your first interview question`

// buildChainInput 将会话转换为提示词模板的输入。
func buildChainInput(session interview.Session, historyLimit int) map[string]any {
	return map[string]any{
		varResumeText:     session.ResumeText,
		varJobDescription: session.JobDescription,
		varTranscript:     transcriptMessages(session.Transcript, historyLimit),
	}
}

// transcriptMessages 按时间顺序转换对话记录。limit > 0 时只保留最近的 limit 条，
// 并保证窗口以用户发言开头。
func transcriptMessages(turns []interview.Turn, limit int) []*schema.Message {
	start := 0
	if limit > 0 && len(turns) > limit {
		start = len(turns) - limit
		for start < len(turns) && turns[start].Role != interview.RoleUser {
			start++
		}
		if start == len(turns) {
			start = len(turns) - 1
		}
	}

	messages := make([]*schema.Message, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		switch turn.Role {
		case interview.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case interview.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
