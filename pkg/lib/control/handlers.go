package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/supervisor"
)

// StopCommand asks the server to save and shut down before its stdin closes.
const StopCommand = "stop"

// logsBuffer is the per-stream console subscription capacity.
const logsBuffer = 256

type service struct {
	backend Backend
	history *console.History

	quit     chan struct{}
	quitOnce sync.Once
}

func newService(backend Backend, history *console.History) *service {
	return &service{backend: backend, history: history, quit: make(chan struct{})}
}

func (s *service) shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *service) SendCommand(_ context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	text := strings.TrimRight(in.GetValue(), "\r\n")
	if strings.TrimSpace(text) == "" {
		return nil, status.Error(codes.InvalidArgument, "command is empty")
	}
	if strings.ContainsAny(text, "\r\n") {
		return nil, status.Error(codes.InvalidArgument, "command must be a single line")
	}
	if err := s.backend.Command(text); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// SaveAs names the next backup. The alias goes through the server chat, so
// it reaches the supervisor the same way a player's "#save" does.
func (s *service) SaveAs(_ context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	alias := strings.TrimSpace(in.GetValue())
	switch {
	case alias == "":
		return nil, status.Error(codes.InvalidArgument, "alias is empty")
	case alias == "." || alias == "..", strings.ContainsAny(alias, "/\r\n"):
		return nil, status.Errorf(codes.InvalidArgument, "alias %q is not a valid file name", alias)
	}
	if err := s.backend.Command("say #save " + alias); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.backend.Command(StopCommand); err != nil {
		return nil, toStatus(err)
	}
	if err := s.backend.Stop(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) Kill(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.backend.Kill(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := StatusToStruct(st)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

// Logs replays the console history from the beginning and then follows it
// until the client goes away, the history closes or the server shuts down.
func (s *service) Logs(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.StringValue]) error {
	if s.history == nil {
		return status.Error(codes.Unavailable, "console history is not kept")
	}

	entries, cancel := s.history.Subscribe(logsBuffer)
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.quit:
			return nil
		case e, ok := <-entries:
			if !ok {
				return nil
			}
			if err := stream.Send(wrapperspb.String(FormatEntry(e))); err != nil {
				return err
			}
		}
	}
}

// FormatEntry renders a console entry as one line; server stdout is printed
// as is, other streams are tagged.
func FormatEntry(e console.Entry) string {
	if e.Stream == console.Stdout {
		return e.Text
	}
	return "[" + string(e.Stream) + "] " + e.Text
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, supervisor.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// StatusToStruct encodes a supervisor status for the wire.
func StatusToStruct(st lib.SupervisorStatus) (*structpb.Struct, error) {
	fields := map[string]any{
		"state":            st.State.String(),
		"pid":              st.PID,
		"alive":            st.Alive,
		"pending_alias":    st.PendingAlias,
		"backup_in_flight": st.BackupInFlight,
		"last_backup":      st.LastBackup,
		"last_error":       st.LastError,
	}
	if !st.StartTime.IsZero() {
		fields["start_time"] = st.StartTime.Format(time.RFC3339)
	}
	if st.LastBackupTime != nil {
		fields["last_backup_time"] = st.LastBackupTime.Format(time.RFC3339)
	}
	if st.ExitCode != nil {
		fields["exit_code"] = *st.ExitCode
	}
	return structpb.NewStruct(fields)
}

// StatusFromStruct decodes what StatusToStruct produced. Unknown or missing
// fields are left zero.
func StatusFromStruct(s *structpb.Struct) lib.SupervisorStatus {
	f := s.GetFields()
	st := lib.SupervisorStatus{
		PID:            int(f["pid"].GetNumberValue()),
		Alive:          f["alive"].GetBoolValue(),
		PendingAlias:   f["pending_alias"].GetStringValue(),
		BackupInFlight: f["backup_in_flight"].GetBoolValue(),
		LastBackup:     f["last_backup"].GetStringValue(),
		LastError:      f["last_error"].GetStringValue(),
	}
	st.State, _ = lib.ParseSupervisorState(f["state"].GetStringValue())
	if t, err := time.Parse(time.RFC3339, f["start_time"].GetStringValue()); err == nil {
		st.StartTime = t
	}
	if t, err := time.Parse(time.RFC3339, f["last_backup_time"].GetStringValue()); err == nil {
		st.LastBackupTime = &t
	}
	if v, ok := f["exit_code"]; ok {
		code := int(v.GetNumberValue())
		st.ExitCode = &code
	}
	return st
}
