package sync

import "errors"

var (
	// ErrNotParticipant: the local user left the chat; reading stays
	// allowed, sending does not.
	ErrNotParticipant = errors.New("sync: you left this chat and cannot send messages")
	// ErrRemoved: the local user was removed by someone else.
	ErrRemoved = errors.New("sync: you were removed from this chat and cannot send messages")
	// ErrNoActiveChat: a stream operation was attempted with no chat selected.
	ErrNoActiveChat = errors.New("sync: no active chat")
	// ErrChatNotFound: the chat id is not in the directory.
	ErrChatNotFound = errors.New("sync: chat not found")
	// ErrEmptyMessage: nothing to send.
	ErrEmptyMessage = errors.New("sync: message has no text and no attachments")
	// ErrUploadsDisabled: the engine was built without an upload pipeline.
	ErrUploadsDisabled = errors.New("sync: attachment uploads not configured")
)
