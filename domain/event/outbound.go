package event

type ConnectedPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type LocalPayload struct {
	Name string  `json:"name"`
	Msg  string  `json:"msg"`
	Map  string  `json:"map"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

type GlobalPayload struct {
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// WhisperPayload is sent to both ends of the conversation.
type WhisperPayload struct {
	Name       string `json:"name"`
	TargetName string `json:"target_name"`
	Msg        string `json:"msg"`
}

type GroupPayload struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
	Msg     string `json:"msg"`
}

type GroupInfo struct {
	GroupID string `json:"group_id"`
	Title   string `json:"title"`
	IconURL string `json:"icon_url"`
}

type MemberPayload struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
}

type GroupLeftPayload struct {
	GroupID string `json:"group_id"`
}

type InvitationInfo struct {
	GroupID   string `json:"group_id"`
	Title     string `json:"title"`
	IconURL   string `json:"icon_url"`
	InviterID string `json:"inviter_id"`
}

type GroupListPayload struct {
	Groups []GroupInfo `json:"groups"`
}

type GroupMember struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

type GroupUserListPayload struct {
	GroupID string        `json:"group_id"`
	Users   []GroupMember `json:"users"`
}

type InvitationListPayload struct {
	Invitations []InvitationInfo `json:"invitations"`
}
