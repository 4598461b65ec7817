package interview

import "time"

// Role identifies who produced a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 是对话记录中的一条消息。
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session captures one mock interview: the candidate's résumé, the role being
// interviewed for and the transcript replayed to the model on every turn.
type Session struct {
	ID             string    `json:"id"`
	ResumeText     string    `json:"-"`
	JobDescription string    `json:"jobDescription"`
	Transcript     []Turn    `json:"transcript"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Clone returns a copy whose transcript does not alias the receiver's.
func (s Session) Clone() Session {
	out := s
	out.Transcript = append([]Turn(nil), s.Transcript...)
	return out
}
