package event

type HandshakeRequest struct {
	UserID        string `json:"user_id" validate:"required,max=64"`
	ConnectionKey string `json:"connection_key" validate:"required,max=128"`
}

// LocalRequest carries the sender's position. Spatial filtering is left to
// the game server, the relay forwards the coordinates untouched.
type LocalRequest struct {
	Msg string  `json:"msg" validate:"required,max=512"`
	Map string  `json:"map" validate:"max=64"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
}

type GlobalRequest struct {
	Msg string `json:"msg" validate:"required,max=512"`
}

type WhisperRequest struct {
	TargetName string `json:"target_name" validate:"required,max=64"`
	Msg        string `json:"msg" validate:"required,max=512"`
}

type GroupRequest struct {
	GroupID string `json:"group_id" validate:"required,uuid4"`
	Msg     string `json:"msg" validate:"required,max=512"`
}

type CreateGroupRequest struct {
	Title   string `json:"title" validate:"required,max=64"`
	IconURL string `json:"icon_url" validate:"max=512"`
}

type UpdateGroupRequest struct {
	GroupID string `json:"group_id" validate:"required,uuid4"`
	Title   string `json:"title" validate:"required,max=64"`
	IconURL string `json:"icon_url" validate:"max=512"`
}

// User ids are storage key components, hence the ':' exclusion.
type GroupInviteRequest struct {
	UserID  string `json:"user_id" validate:"required,max=64,excludesall=:"`
	GroupID string `json:"group_id" validate:"required,uuid4"`
}

// GroupRef is the payload of every event that only names a group.
type GroupRef struct {
	GroupID string `json:"group_id" validate:"required,uuid4"`
}

type KickUserRequest struct {
	GroupID string `json:"group_id" validate:"required,uuid4"`
	UserID  string `json:"user_id" validate:"required,max=64,excludesall=:"`
}
