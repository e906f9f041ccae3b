package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/metrics"
	"github.com/robotalks/romi.go/pkg/recorder"
	"github.com/robotalks/romi.go/pkg/share"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

type fixture struct {
	server   *Server
	http     *httptest.Server
	commands *share.Queue[brain.Command]
	status   *share.Share[brain.Status]
	hub      *telemetry.Hub
}

func newFixture(t *testing.T) *fixture {
	reg := share.NewRegistry()
	sched := cotask.NewScheduler()
	sched.Add(cotask.NewTask("brain", cotask.StepFunc(func(cotask.TaskContext) (cotask.State, error) {
		return 0, nil
	}), cotask.WithPeriod(10*time.Millisecond), cotask.WithTrace(true)))
	f := &fixture{
		commands: brain.NewCommandQueue(reg),
		status:   brain.NewStatusShare(reg),
		hub:      &telemetry.Hub{},
	}
	f.server = &Server{
		Scheduler: sched,
		Registry:  reg,
		Status:    f.status,
		Commands:  f.commands,
		Hub:       f.hub,
		Gatherer:  metrics.NewRegistry(metrics.NewCollector(sched, reg)),
	}
	f.http = httptest.NewServer(f.server.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) (int, string) {
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTextRoutes(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		path     string
		code     int
		contains string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/tasks", http.StatusOK, "brain"},
		{"/tasks/brain/trace", http.StatusOK, ""},
		{"/tasks/nope/trace", http.StatusNotFound, ""},
		{"/shares", http.StatusOK, "Queue brain.commands"},
		{"/metrics", http.StatusOK, `romi_task_runs_total{task="brain"} 0`},
		{"/runs", http.StatusNotFound, ""},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			code, body := f.get(t, c.path)
			require.Equal(t, c.code, code)
			require.Contains(t, body, c.contains)
		})
	}
}

func TestStatusJSON(t *testing.T) {
	f := newFixture(t)
	f.status.Put(brain.Status{State: "lap", Pose: brain.Pose{X: 0.5}})
	code, body := f.get(t, "/status")
	require.Equal(t, http.StatusOK, code)
	var st brain.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	require.Equal(t, "lap", st.State)
	require.Equal(t, 0.5, st.Pose.X)
}

func TestPostCommand(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		body string
		code int
	}{
		{"move 0.2", http.StatusAccepted},
		{"fly", http.StatusBadRequest},
		{"", http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.body, func(t *testing.T) {
			resp, err := http.Post(f.http.URL+"/cmd", "text/plain", strings.NewReader(c.body))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, c.code, resp.StatusCode)
		})
	}
	cmd, err := f.commands.Get()
	require.NoError(t, err)
	require.Equal(t, brain.CmdMove, cmd.Kind)
	require.Equal(t, 0.2, cmd.Value)
	require.True(t, f.commands.Empty())
}

func TestResetTasks(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.http.URL+"/tasks/reset", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTelemetryStream(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/telemetry"
	ws, err := websocket.Dial(url, "", f.http.URL)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.hub.Publish(context.Background(), telemetry.Frame{
		RobotID: "r1", Seq: 7, Status: brain.Status{State: "course"},
	}))
	var msg string
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, websocket.Message.Receive(ws, &msg))
	frame, err := telemetry.JSONCodec{}.Decode([]byte(msg))
	require.NoError(t, err)
	require.Equal(t, uint64(7), frame.Seq)
	require.Equal(t, "course", frame.Status.State)

	require.NoError(t, websocket.Message.Send(ws, "zero"))
	require.Eventually(t, func() bool { return f.commands.Any() }, time.Second, 5*time.Millisecond)
	cmd, err := f.commands.Get()
	require.NoError(t, err)
	require.Equal(t, brain.CmdZero, cmd.Kind)

	ws.Close()
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRunsRoutes(t *testing.T) {
	rec, err := recorder.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer rec.Close()
	ctx := context.Background()
	run, err := rec.StartRun(ctx, "r1", "sim", "lap")
	require.NoError(t, err)
	require.NoError(t, rec.Publish(ctx, telemetry.Frame{RobotID: "r1", Seq: 1, Status: brain.Status{State: "lap"}}))

	srv := httptest.NewServer((&Server{Recorder: rec}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	var runs []recorder.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	resp.Body.Close()
	require.Len(t, runs, 1)
	require.Equal(t, run.ID, runs[0].ID)

	resp, err = http.Get(srv.URL + "/runs/" + run.ID + "/frames")
	require.NoError(t, err)
	var frames []telemetry.Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&frames))
	resp.Body.Close()
	require.Len(t, frames, 1)
	require.Equal(t, "lap", frames[0].Status.State)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/runs/"+run.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRunDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, (&Server{}).Run(ctx), context.Canceled)
}
