package engine

// Wire messages for the sync protocol. The client opens a WebSocket,
// sends init, receives the server's document backlog up to ready, then
// pushes its own changes.

type initMessage struct {
	Op           string `json:"op"`
	Token        string `json:"token"`
	ID           string `json:"id"`
	Version      int64  `json:"version"`
	Initial      bool   `json:"initial"`
	Device       string `json:"device"`
	DownloadOnly bool   `json:"download_only"`
}

type initResponse struct {
	Res     string `json:"res"`
	Msg     string `json:"msg"`
	Version int64  `json:"version"`
}

// docMessage is a server-to-client document update. Content is
// base64-encoded; Deleted means the path was removed on another device.
type docMessage struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Version int64  `json:"version"`
	MTime   int64  `json:"mtime"`
	Deleted bool   `json:"deleted"`
	Device  string `json:"device"`
}

type readyMessage struct {
	Op      string `json:"op"`
	Version int64  `json:"version"`
}

// pushMessage is a client-to-server document update.
type pushMessage struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Hash    string `json:"hash,omitempty"`
	MTime   int64  `json:"mtime,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

type pushResponse struct {
	Res     string `json:"res"`
	Msg     string `json:"msg"`
	Version int64  `json:"version"`
}
