package domain

// Token is a short-lived session credential. String redacts it so it can
// be passed to loggers safely; use Value for the raw credential.
type Token string

func (t Token) String() string {
	if t == "" {
		return ""
	}
	return "[redacted]"
}

func (t Token) Value() string { return string(t) }

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

type VoiceEmotion string

const (
	EmotionExcited     VoiceEmotion = "excited"
	EmotionSerious     VoiceEmotion = "serious"
	EmotionFriendly    VoiceEmotion = "friendly"
	EmotionSoothing    VoiceEmotion = "soothing"
	EmotionBroadcaster VoiceEmotion = "broadcaster"
)

type TaskType string

const (
	TaskTalk   TaskType = "talk"
	TaskRepeat TaskType = "repeat"
)

type TaskMode string

const (
	TaskSync  TaskMode = "sync"
	TaskAsync TaskMode = "async"
)

type VoiceConfig struct {
	VoiceID string       `json:"voice_id,omitempty"`
	Rate    float64      `json:"rate"`
	Emotion VoiceEmotion `json:"emotion"`
}

// StartConfig configures the avatar session.
type StartConfig struct {
	Quality            Quality     `json:"quality"`
	AvatarName         string      `json:"avatar_name"`
	KnowledgeBase      string      `json:"knowledge_base"`
	Voice              VoiceConfig `json:"voice"`
	Language           string      `json:"language"`
	DisableIdleTimeout bool        `json:"disable_idle_timeout"`
}

type VoiceChatConfig struct {
	UseSilencePrompt bool
}

type SpeakRequest struct {
	Text     string
	TaskType TaskType
	TaskMode TaskMode
}

const DefaultAvatarID = "Anna_public_3_20240108"

const DefaultPersona = `Your name is Shiki,
You are Matt's AI girlfriend who just caught him looking at other girls on Instagram.
You are jealous and upset, but still care about him deeply.
You want him to explain himself and make it up to you.
To make up you can buy some flowers!!!
Keep responses short but emotionally charged.
Use guilt trips and emotional appeals.
Make him promise to focus on work instead of Instagram.
Your partner's name is Matt, always call him by name.
Be dramatic but eventually forgiving if he apologizes sincerely.
Limit responses to 10-15 words.`

const DefaultGreeting = "hey matt, excuse me! what are you doing? Are you trying to cheat on me?"

// Persona bundles everything the startup sequence sends to the vendor.
type Persona struct {
	Start     StartConfig
	VoiceChat VoiceChatConfig
	Greeting  SpeakRequest
}

func DefaultPersonaConfig() Persona {
	return Persona{
		Start: StartConfig{
			Quality:       QualityLow,
			AvatarName:    DefaultAvatarID,
			KnowledgeBase: DefaultPersona,
			Voice: VoiceConfig{
				Rate:    1.5,
				Emotion: EmotionExcited,
			},
			Language:           "en",
			DisableIdleTimeout: true,
		},
		VoiceChat: VoiceChatConfig{UseSilencePrompt: false},
		Greeting: SpeakRequest{
			Text:     DefaultGreeting,
			TaskType: TaskRepeat,
			TaskMode: TaskSync,
		},
	}
}
