package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

func TestTenantID_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      types.TenantID
		wantErr bool
	}{
		{name: "simple", id: "acme"},
		{name: "with hyphen", id: "acme-corp"},
		{name: "with digits", id: "tenant42"},
		{name: "empty", id: "", wantErr: true},
		{name: "uppercase", id: "Acme", wantErr: true},
		{name: "underscore", id: "acme_corp", wantErr: true},
		{name: "leading hyphen", id: "-acme", wantErr: true},
		{name: "double hyphen", id: "acme--corp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestAgentID_Validate(t *testing.T) {
	gt.NoError(t, types.AgentID("agent-acme").Validate())
	gt.Error(t, types.AgentID("").Validate())
	gt.Error(t, types.AgentID("Agent Acme").Validate())
}

func TestNewIDs(t *testing.T) {
	a, b := types.NewTaskID(), types.NewTaskID()
	gt.V(t, a).NotEqual(b)
	gt.S(t, a.String()).NotEqual("")

	gt.V(t, types.NewDecisionID()).NotEqual(types.NewDecisionID())
	gt.V(t, types.NewCredentialID()).NotEqual(types.NewCredentialID())
}

func TestSourceChannel(t *testing.T) {
	for _, s := range types.AllSourceChannels() {
		got, err := types.ParseSourceChannel(s.String())
		gt.NoError(t, err)
		gt.V(t, got).Equal(s)
	}
	_, err := types.ParseSourceChannel("fax")
	gt.Error(t, err)
}

func TestNotificationChannel(t *testing.T) {
	for _, c := range []types.NotificationChannel{types.NotifyEmail, types.NotifySMS, types.NotifyChat, types.NotifyWebhook} {
		got, err := types.ParseNotificationChannel(c.String())
		gt.NoError(t, err)
		gt.V(t, got).Equal(c)
	}
	_, err := types.ParseNotificationChannel("pager")
	gt.Error(t, err)

	gt.B(t, types.MessageClarification.IsValid()).True()
	gt.B(t, types.MessageType("banner").IsValid()).False()
}
