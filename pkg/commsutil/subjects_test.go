package commsutil

import "testing"

func TestBuildCallSubject(t *testing.T) {
	tests := []struct {
		name      string
		connector string
		method    string
		want      string
	}{
		{"basic", "Avatar", "Get", "connectors.called.Avatar.Get"},
		{"dotted", "agent.info", "GetUserInfo", "connectors.called.agent_info.GetUserInfo"},
		{"wildcards", "A*", "B>", "connectors.called.A_.B_"},
		{"empty", "", "Ping", "connectors.called._.Ping"},
		{"whitespace", "Avatar", "Get\tAll\r\nx y", "connectors.called.Avatar.Get_All__x_y"},
		{"control", "Avatar", "Get\x00", "connectors.called.Avatar.Get_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCallSubject(tt.connector, tt.method)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildCallSubject(%q, %q) = %q, want %q", tt.connector, tt.method, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodePayload(t *testing.T) {
	type msg struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	data, err := EncodePayload(msg{Name: "x", Count: 2})
	if err != nil {
		t.Fatalf("commsutil:subjects_test - encode: %v", err)
	}
	if string(data) != `{"name":"x","count":2}` {
		t.Errorf("commsutil:subjects_test - encoded %s", data)
	}
	got, err := DecodePayload[msg](data)
	if err != nil {
		t.Fatalf("commsutil:subjects_test - decode: %v", err)
	}
	if got.Name != "x" || got.Count != 2 {
		t.Errorf("commsutil:subjects_test - decoded %+v", got)
	}

	if _, err := EncodePayload(make(chan int)); err == nil {
		t.Error("commsutil:subjects_test - expected error encoding a channel")
	}
	if _, err := DecodePayload[msg]([]byte("{")); err == nil {
		t.Error("commsutil:subjects_test - expected error decoding truncated JSON")
	}
}
