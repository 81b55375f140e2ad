package worker_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/worker"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want worker.Message
	}{
		{
			name: "process frame with id in payload",
			in:   `{"type":"PROCESS_FRAME","payload":{"script":{"speaker":"Macbeth","text":"Hail"},"trauma":0.4,"entropy":0.6,"id":"abc"}}`,
			want: worker.ProcessFrame{ID: "abc", Script: types.ScriptLine{Speaker: "Macbeth", Text: "Hail"}, Trauma: 0.4, Entropy: 0.6},
		},
		{
			name: "process frame with id on envelope",
			in:   `{"type":"PROCESS_FRAME","payload":{"script":{}},"id":"xyz"}`,
			want: worker.ProcessFrame{ID: "xyz"},
		},
		{name: "reset without payload", in: `{"type":"RESET"}`, want: worker.Reset{}},
		{name: "mode", in: `{"type":"SET_MODE","payload":{"mode":"jazz_ensemble"}}`, want: worker.SetMode{Mode: reference.JazzEnsemble}},
		{name: "style", in: `{"type":"SET_STYLE","payload":{"styleId":"baroque"}}`, want: worker.SetStyle{StyleID: "baroque"}},
		{name: "ai", in: `{"type":"SET_AI","payload":{"enabled":true,"temperature":0.7}}`, want: worker.SetAI{Enabled: true, Temperature: 0.7}},
		{name: "jump", in: `{"type":"JUMP_TO_FRAME","payload":{"frameIndex":12}}`, want: worker.JumpToFrame{FrameIndex: 12}},
		{
			name: "adjustments",
			in:   `{"type":"UPDATE_ADJUSTMENTS","payload":{"adjustments":{"rhythm-006":{"id":"rhythm-006","tempo":140}}}}`,
			want: worker.UpdateAdjustments{Adjustments: types.Adjustments{"rhythm-006": {ID: "rhythm-006", Tempo: 140}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := worker.Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	if _, err := worker.Decode([]byte(`{"type":"SELF_DESTRUCT"}`)); !errors.Is(err, worker.ErrUnknownType) {
		t.Errorf("unknown type: err = %v, want ErrUnknownType", err)
	}
	if _, err := worker.Decode([]byte(`not json`)); err == nil {
		t.Error("malformed envelope should fail")
	}
	if _, err := worker.Decode([]byte(`{"type":"JUMP_TO_FRAME","payload":{"frameIndex":"twelve"}}`)); err == nil {
		t.Error("malformed payload should fail")
	}
}

func TestDecode_ErrorCarriesRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "payload id", in: `{"type":"PROCESS_FRAME","id":"env","payload":{"id":"req-42","trauma":"high"}}`, want: "req-42"},
		{name: "envelope id", in: `{"type":"PROCESS_FRAME","id":"req-7","payload":{"trauma":"high"}}`, want: "req-7"},
		{name: "unknown type", in: `{"type":"LAUNCH","id":"req-9"}`, want: "req-9"},
		{name: "no id", in: `{"type":"JUMP_TO_FRAME","payload":{"frameIndex":"twelve"}}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := worker.Decode([]byte(tt.in))
			var de *worker.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
			if de.ID != tt.want {
				t.Errorf("ID = %q, want %q", de.ID, tt.want)
			}
		})
	}
}

func TestEncode_ProcessFrameCarriesID(t *testing.T) {
	t.Parallel()

	data, err := worker.Encode(worker.ProcessFrame{ID: "id-1", Trauma: 0.5})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env worker.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != worker.TypeProcessFrame || env.ID != "id-1" {
		t.Errorf("envelope = %+v", env)
	}
	back, err := worker.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.(worker.ProcessFrame).ID != "id-1" {
		t.Errorf("decoded id = %q", back.(worker.ProcessFrame).ID)
	}
}

func TestResponses(t *testing.T) {
	t.Parallel()

	data, err := worker.EncodeResponse(worker.Response{Type: worker.TypeError, ID: "id-2", Err: "orchestrator: no actors registered"})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if string(data) != `{"type":"ERROR","payload":"orchestrator: no actors registered","id":"id-2"}` {
		t.Errorf("wire = %s", data)
	}

	frame := types.Frame{Index: 3, Speaker: "Banquo"}
	data, err = worker.EncodeResponse(worker.Response{Type: worker.TypeProcessSuccess, ID: "id-3", Frame: &frame})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	r, err := worker.DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if r.ID != "id-3" || r.Frame == nil || r.Frame.Index != 3 || r.Frame.Speaker != "Banquo" {
		t.Errorf("response = %+v", r)
	}

	data, _ = worker.EncodeResponse(worker.Response{Type: worker.TypeInitSuccess})
	if string(data) != `{"type":"INIT_SUCCESS"}` {
		t.Errorf("init success wire = %s", data)
	}
}
