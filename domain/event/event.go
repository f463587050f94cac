// Package event defines the names and payloads of the frames exchanged
// with game clients.
package event

// Inbound event names.
const (
	Handshake           = "handshake"
	Local               = "local"
	Global              = "global"
	Whisper             = "whisper"
	Group               = "group"
	CreateGroup         = "create-group"
	UpdateGroup         = "update-group"
	GroupInvite         = "group-invite"
	GroupInviteAccept   = "group-invite-accept"
	GroupInviteDecline  = "group-invite-decline"
	LeaveGroup          = "leave-group"
	KickUser            = "kick-user"
	GroupList           = "group-list"
	GroupUserList       = "group-user-list"
	GroupInvitationList = "group-invitation-list"
)

// Outbound-only event names. Local, Global, Whisper, Group, UpdateGroup and
// the three snapshot names are reused for the server's answers.
const (
	Connected         = "connected"
	GroupCreated      = "group-created"
	GroupMemberJoined = "group-member-joined"
	GroupMemberLeft   = "group-member-left"
	GroupLeft         = "group-left"
	GroupInvited      = "group-invited"
)
