package game

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
)

// Versions are the design versions the settings service advertises.
type Versions struct {
	RoomDesign      int
	ResearchDesign  int
	CharacterDesign int
}

// LiveOps is today's live event.
type LiveOps struct {
	ID                  string
	DailyRewardType     string
	DailyRewardArgument string
}

type TaskDesign struct {
	ID              string
	Name            string
	ObjectiveAmount int
}

type Task struct {
	DesignID  string
	Collected bool
	Progress  int
}

// Collectable reports whether the task reached the design's objective and
// its reward is still waiting.
func (t Task) Collectable(d TaskDesign) bool {
	return !t.Collected && t.Progress != 0 && t.Progress == d.ObjectiveAmount
}

type Room struct {
	ID       string
	DesignID string
	Status   string
}

type Ship struct {
	ID     string
	UserID string
	Name   string
	Rooms  []Room
}

type Character struct {
	ID              string
	Name            string
	Fatigue         int
	TrainingEndDate time.Time
}

// Message is a system message, optionally carrying a reward such as
// "starbux:5".
type Message struct {
	ID       string
	Text     string
	Argument string
}

// Reward splits Argument into kind and amount. ok is false for plain
// messages.
func (m Message) Reward() (kind, amount string, ok bool) {
	if m.Argument == "" || m.Argument == "None" {
		return "", "", false
	}
	kind, amount, _ = strings.Cut(m.Argument, ":")
	return kind, amount, true
}

// Resources are the ship's totals after a collection.
type Resources struct {
	Minerals int
	Gas      int
	Credits  int
}

func parseVersions(root *protocol.Node) Versions {
	s := root.Find("Setting")
	v := Versions{}
	v.RoomDesign, _ = s.Int("RoomDesignVersion")
	v.ResearchDesign, _ = s.Int("ResearchDesignVersion")
	v.CharacterDesign, _ = s.Int("CharacterDesignVersion")
	return v
}

func parseLiveOps(root *protocol.Node) LiveOps {
	n := root.Find("LiveOps")
	return LiveOps{
		ID:                  n.AttrOr("LiveOpsId", ""),
		DailyRewardType:     n.AttrOr("DailyRewardType", ""),
		DailyRewardArgument: n.AttrOr("DailyRewardArgument", ""),
	}
}

func parseTaskDesigns(root *protocol.Node) []TaskDesign {
	return lo.Map(root.FindAll("TaskDesign"), func(n *protocol.Node, _ int) TaskDesign {
		amount, _ := n.Int("ObjectiveAmount")
		return TaskDesign{
			ID:              n.AttrOr("TaskDesignId", ""),
			Name:            n.AttrOr("Name", ""),
			ObjectiveAmount: amount,
		}
	})
}

func parseTasks(root *protocol.Node) []Task {
	return lo.Map(root.FindAll("Task"), func(n *protocol.Node, _ int) Task {
		progress, _ := n.Int("ProgressValue")
		return Task{
			DesignID:  n.AttrOr("TaskDesignId", ""),
			Collected: n.Bool("Collected"),
			Progress:  progress,
		}
	})
}

func parseShip(root *protocol.Node) *Ship {
	n := root.Find("Ship")
	if n == nil {
		return nil
	}
	return &Ship{
		ID:     n.AttrOr("ShipId", ""),
		UserID: n.AttrOr("UserId", ""),
		Name:   n.AttrOr("ShipName", ""),
		Rooms: lo.Map(n.FindAll("Room"), func(r *protocol.Node, _ int) Room {
			return Room{
				ID:       r.AttrOr("RoomId", ""),
				DesignID: r.AttrOr("RoomDesignId", ""),
				Status:   r.AttrOr("RoomStatus", ""),
			}
		}),
	}
}

func parseCharacters(root *protocol.Node) []Character {
	return lo.Map(root.FindAll("Character"), func(n *protocol.Node, _ int) Character {
		c := Character{
			ID:   n.AttrOr("CharacterId", ""),
			Name: n.AttrOr("CharacterName", ""),
		}
		c.Fatigue, _ = n.Int("Fatigue")
		if ts, err := clock.Parse(n.AttrOr("TrainingEndDate", "")); err == nil {
			c.TrainingEndDate = ts
		}
		return c
	})
}

func parseMessages(root *protocol.Node) []Message {
	return lo.Map(root.FindAll("Message"), func(n *protocol.Node, _ int) Message {
		return Message{
			ID:       n.AttrOr("MessageId", ""),
			Text:     n.AttrOr("Message", ""),
			Argument: n.AttrOr("ActivityArgument", ""),
		}
	})
}
