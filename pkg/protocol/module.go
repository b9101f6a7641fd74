package protocol

import "time"

const (
	// Server -> client
	LobbyOp int = iota
	StartCountdownOp
	MoveToGameOp
	GameStateOp
	RoundStartOp
	WaitingPlayersOp
	AllFinishedOp
	RoundActionsOp
	ChatHistoryOp
	MessagesReadOp
	UnreadCountsOp
	TypingUpdateOp
	NoticeOp
	PongOp
	LobbyPingsOp
	// Client -> server
	JoinOp
	LeaveOp
	SetCountryOp
	StartGameOp
	SubmitActionOp
	FinishTurnOp
	UndoFinishOp
	RequestGameStateOp
	RequestRoundStartOp
	RequestChatHistoryOp
	MarkReadOp
	RequestUnreadOp
	TypingOp
	PingOp
	ReportPingOp
	// Either direction
	RoomMessageOp
	PrivateMessageOp
)

// Used to peek at the op of an incoming message before decoding it fully.
type GenericMessage struct {
	Op int
}

// A country name in every language the frontend can render.
type LocalizedName struct {
	EN string
	RU string
	UK string
}

type City struct {
	Names     LocalizedName
	Shield    int
	Level     int
	Income    int
	Defense   int
	Stability int
}

type ActionType string

const (
	ActionBuyArmy     ActionType = "buyArmy"
	ActionUpgradeCity ActionType = "upgradeCity"
	ActionAttack      ActionType = "attack"
	ActionNuclear     ActionType = "developNuclear"
	ActionSanction    ActionType = "setSanction"
	ActionResearch    ActionType = "researchTechnology"
)

// A queued player intent. Only the fields relevant to Type are set; the
// rest stay at their zero values. Validation happens at resolution time,
// never on submission.
type Action struct {
	Type          ActionType
	Count         int
	City          string
	TargetCountry string
	TargetCity    string
	Army          int
	Tech          string
	Cost          int
	Player        string
	Country       string
	Timestamp     int64
}

type ChannelKind byte

const (
	ChannelRoom ChannelKind = iota
	ChannelPrivate
)

// A chat destination: the lobby room or a private conversation with one
// other player. Replaces the legacy "all" recipient sentinel.
type Channel struct {
	Kind  ChannelKind
	Other string
}

func RoomChannel() Channel {
	return Channel{Kind: ChannelRoom}
}

func PrivateChannel(other string) Channel {
	return Channel{Kind: ChannelPrivate, Other: other}
}

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// rank orders delivery states so status can only ever advance.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return 0
}

// Advance returns the later of the two states; delivery status never moves
// backward.
func (s DeliveryStatus) Advance(to DeliveryStatus) DeliveryStatus {
	if to.rank() > s.rank() {
		return to
	}
	return s
}

type ChatMessage struct {
	ID      string
	From    string
	Channel Channel
	Body    string
	Lobby   string
	// Unix milliseconds; clients render this directly.
	Time   int64
	Status DeliveryStatus
	ReadBy []string
}

type PlayerInfo struct {
	Name     string
	Country  string
	JoinedAt time.Time
	// Last latency the client reported, in milliseconds.
	Ping int
}

type LobbySnapshot struct {
	LobbyID        string
	Players        []PlayerInfo
	Host           string
	GameInProgress bool
}

type GameSnapshot struct {
	Round           int
	Players         []string
	PlayerCountries map[string]LocalizedName
	CountryNames    map[string]LocalizedName
	Cities          map[string][]City
	Armies          map[string]int
	Budgets         map[string]int
	Stability       map[string]int
	Nuclear         map[string]int
	Sanctions       map[string]int
	Technologies    map[string]map[string]int
	Actions         map[string][]Action
	Finished        map[string]bool
	RoundStartedAt  time.Time
}

// Client -> server

type JoinMessage struct {
	Op      int // JoinOp
	Lobby   string
	Player  string
	Country string
}

type LeaveMessage struct {
	Op     int // LeaveOp
	Lobby  string
	Player string
}

type SetCountryMessage struct {
	Op      int // SetCountryOp
	Lobby   string
	Player  string
	Country string
}

type StartGameMessage struct {
	Op    int // StartGameOp
	Lobby string
}

type SubmitActionMessage struct {
	Op     int // SubmitActionOp
	Lobby  string
	Player string
	Action Action
}

// Used for both FinishTurnOp and UndoFinishOp.
type TurnMessage struct {
	Op     int
	Lobby  string
	Player string
}

type RequestStateMessage struct {
	Op    int // RequestGameStateOp or RequestRoundStartOp
	Lobby string
}

type ChatHistoryRequest struct {
	Op      int // RequestChatHistoryOp
	Lobby   string
	Channel Channel
}

type MarkReadMessage struct {
	Op    int // MarkReadOp
	Lobby string
	From  string
}

type RequestUnreadMessage struct {
	Op    int // RequestUnreadOp
	Lobby string
}

type TypingMessage struct {
	Op       int // TypingOp
	Lobby    string
	Channel  Channel
	IsTyping bool
}

type PingMessage struct {
	Op int // PingOp
	Ts int64
}

type ReportPingMessage struct {
	Op   int // ReportPingOp
	Ping int
}

// Either direction; RoomMessageOp or PrivateMessageOp. The server echoes the
// stored message (with id and status filled in) back to the sender.
type ChatPacket struct {
	Op      int
	Lobby   string
	Message ChatMessage
}

// Server -> client

type LobbyMessage struct {
	Op       int // LobbyOp
	Snapshot LobbySnapshot
}

type CountdownMessage struct {
	Op      int // StartCountdownOp
	Seconds int
}

type GameStateMessage struct {
	Op int // GameStateOp
	// False means "no game": distinguishes a game that has not started
	// from one that is still loading.
	Active bool
	State  GameSnapshot
}

type RoundStartMessage struct {
	Op        int // RoundStartOp
	Round     int
	StartedAt time.Time
}

type WaitingMessage struct {
	Op      int // WaitingPlayersOp
	Players []string
}

type AllFinishedMessage struct {
	Op       int // AllFinishedOp
	Finished bool
}

type RoundActionsMessage struct {
	Op      int // RoundActionsOp
	Round   int
	Actions map[string][]Action
	State   GameSnapshot
}

type ChatHistoryMessage struct {
	Op       int // ChatHistoryOp
	Channel  Channel
	Messages []ChatMessage
}

type MessagesReadMessage struct {
	Op int // MessagesReadOp
	By string
	Ts int64
}

// Counts keyed by sender name; the room bucket keeps the legacy "all" key
// because the frontend consumes that shape.
type UnreadCountsMessage struct {
	Op     int // UnreadCountsOp
	Counts map[string]int
}

type TypingUpdateMessage struct {
	Op       int // TypingUpdateOp
	Channel  Channel
	Players  []string
	IsTyping bool
}

type NoticeMessage struct {
	Op      int // NoticeOp
	Message string
}

type PongMessage struct {
	Op int // PongOp
	Ts int64
}

type LobbyPingsMessage struct {
	Op    int // LobbyPingsOp
	Pings map[string]int
}
