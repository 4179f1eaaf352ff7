package fakeapi

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
)

// LoginData fills a DeviceLogin or refresh-token authorize payload.
type LoginData struct {
	UserID        string
	Name          string
	Email         string
	AccessToken   string
	LastHeartBeat time.Time
	Credits       int
	FreeStarbux   int
	DailyReward   int
}

// LoginXML renders a UserService login payload carrying an access token.
func LoginXML(d LoginData) string {
	email := ""
	if d.Email != "" {
		email = fmt.Sprintf(` Email="%s"`, attr(d.Email))
	}
	return fmt.Sprintf(
		`<UserService><UserLogin UserId="%s" accessToken="%s"><User Id="%s" Name="%s"%s LastHeartBeatDate="%s" Credits="%d" DailyRewardStatus="%d" FreeStarbuxReceivedToday="%d"/></UserLogin></UserService>`,
		attr(d.UserID), attr(d.AccessToken), attr(d.UserID), attr(d.Name), email,
		clock.Format(d.LastHeartBeat), d.Credits, d.DailyReward, d.FreeStarbux)
}

// AuthorizeXML renders a credential authorize success.
func AuthorizeXML(refreshToken string, requireReload bool) string {
	reload := "False"
	if requireReload {
		reload = "True"
	}
	return fmt.Sprintf(`<UserService><UserLogin refreshToken="%s" RequireReload="%s"/></UserService>`,
		attr(refreshToken), reload)
}

// HeartBeatXML renders a heartbeat reply.
func HeartBeatXML(success bool) string {
	return fmt.Sprintf(`<UserService><HeartBeat success="%t"/></UserService>`, success)
}

// AddStarbuxXML renders an AddStarbux2 success.
func AddStarbuxXML(freeToday, credits int) string {
	return fmt.Sprintf(`<UserService><AddStarbux><User FreeStarbuxReceivedToday="%d" Credits="%d"/></AddStarbux></UserService>`,
		freeToday, credits)
}

// ErrorXML renders the error shape every service uses.
func ErrorXML(service, method, message, code string) string {
	codeAttr := ""
	if code != "" {
		codeAttr = fmt.Sprintf(` errorCode="%s"`, attr(code))
	}
	return fmt.Sprintf(`<%s><%s errorMessage="%s"%s/></%s>`,
		service, method, attr(message), codeAttr, service)
}

func genericOK(service, method string) string {
	if service == "" || method == "" {
		return `<Ok success="true"/>`
	}
	return fmt.Sprintf(`<%s><%s success="true"/></%s>`, service, method, service)
}

func tasksXML(p *player) string {
	var b strings.Builder
	b.WriteString(`<TaskService><ListTasksOfAUser><Tasks>`)
	for _, t := range []struct{ id, progress string }{{"1", "3"}, {"2", "1"}, {"3", "0"}} {
		fmt.Fprintf(&b, `<Task TaskDesignId="%s" Collected="%t" ProgressValue="%s"/>`,
			t.id, p.tasksCollected[t.id], t.progress)
	}
	b.WriteString(`</Tasks></ListTasksOfAUser></TaskService>`)
	return b.String()
}

func attr(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

const latestVersionXML = `<SettingService><GetLatestSetting><Setting RoomDesignVersion="12" ResearchDesignVersion="7" CharacterDesignVersion="3"/></GetLatestSetting></SettingService>`

const liveOpsXML = `<LiveOpsService><GetTodayLiveOps><LiveOps LiveOpsId="1" DailyRewardArgument="500" DailyRewardType="Starbux"/></GetTodayLiveOps></LiveOpsService>`

const taskDesignsXML = `<TaskService><ListAllTaskDesigns><TaskDesigns><TaskDesign TaskDesignId="1" Name="Collect minerals" ObjectiveAmount="3"/><TaskDesign TaskDesignId="2" Name="Train crew" ObjectiveAmount="2"/><TaskDesign TaskDesignId="3" Name="Win battles" ObjectiveAmount="5"/></TaskDesigns></ListAllTaskDesigns></TaskService>`

const shipXML = `<ShipService><GetShipByUserId><Ship ShipId="77" UserId="1000" ShipName="Tachikoma"><Rooms><Room RoomId="1" RoomDesignId="10" RoomStatus="Normal"/><Room RoomId="2" RoomDesignId="20" RoomStatus="Upgrading"/></Rooms></Ship></GetShipByUserId></ShipService>`

const charactersXML = `<CharacterService><ListAllCharactersOfUser><Characters><Character CharacterId="5" CharacterName="Batou" TrainingEndDate="2000-01-01T00:00:00"/><Character CharacterId="6" CharacterName="Togusa" TrainingEndDate=""/></Characters></ListAllCharactersOfUser></CharacterService>`

const messagesXML = `<MessageService><ListSystemMessagesForUser><Messages><Message MessageId="1" Message="Daily gift" ActivityArgument="starbux:5"/><Message MessageId="2" Message="Salvage" ActivityArgument="mineral:100"/><Message MessageId="3" Message="Welcome aboard" ActivityArgument="None"/></Messages></ListSystemMessagesForUser></MessageService>`
