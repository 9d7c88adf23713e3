package model

// QA — один ход диалога: вопрос и (возможно частичный) ответ
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type AskRequest struct {
	Question string `json:"question" form:"question"`
}

type ChatRequest struct {
	Name string `json:"name" form:"name"`
}

// Settings — настройки сессии, меняются из UI
type Settings struct {
	APIKey string `json:"api_key"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// Valid — ключ и промпт заданы
func (s Settings) Valid() bool {
	return s.APIKey != "" && s.Prompt != ""
}

// SettingsPatch — частичное обновление, nil = не менять
type SettingsPatch struct {
	APIKey *string `json:"api_key,omitempty"`
	Prompt *string `json:"prompt,omitempty"`
	Model  *string `json:"model,omitempty"`
}

// Document — результат layout analysis последнего загруженного PDF
type Document struct {
	Source  string `json:"source"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

// Snapshot — состояние сессии целиком, для GET /api/state
type Snapshot struct {
	Chats         map[string][]QA `json:"chats"`
	Titles        []string        `json:"titles"`
	Current       string          `json:"current"`
	Processing    bool            `json:"processing"`
	PDFUploaded   bool            `json:"pdf_uploaded"`
	DocumentReady bool            `json:"document_ready"`
	Model         string          `json:"model"`
	SettingsValid bool            `json:"settings_valid"`
}
