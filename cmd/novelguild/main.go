package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
)

var (
	app = kingpin.New("novelguild", "Command line client for the NovelGuild writing server")

	serverURL = app.Flag("server", "Server base URL").Default("http://localhost:3200").Envar("NOVELGUILD_SERVER").String()
	apiKey    = app.Flag("api-key", "API key").Envar("NOVELGUILD_API_KEY").Required().String()
	userID    = app.Flag("user", "User id owning workflows").Default("local").Envar("NOVELGUILD_USER").String()

	// Persona commands
	personasCmd = app.Command("personas", "List personas and whether their prompts load")

	chatCmd      = app.Command("chat", "Talk to a persona")
	chatPersona  = chatCmd.Arg("persona", "Persona id").Required().String()
	chatMessage  = chatCmd.Arg("message", "Message").Required().String()
	chatScenario = chatCmd.Flag("scenario", "Scenario (brainstorming, review, problem_solving, creation)").Default("default").String()
	chatProject  = chatCmd.Flag("project", "Project path or name").String()
	chatStream   = chatCmd.Flag("stream", "Stream the answer as it is generated").Bool()

	// Workflow commands
	workflowCmd = app.Command("workflow", "Guided authoring workflows")

	wfStartCmd     = workflowCmd.Command("start", "Start a workflow and run its analysis phase")
	wfStartProject = wfStartCmd.Arg("project", "Project name").Required().String()
	wfStartPrompt  = wfStartCmd.Arg("prompt", "Initial request").Required().String()

	wfExecCmd     = workflowCmd.Command("exec", "Execute the current phase")
	wfExecID      = wfExecCmd.Arg("id", "Workflow id").Required().String()
	wfExecMessage = wfExecCmd.Arg("message", "Guidance for the phase").Default("继续").String()
	wfExecStream  = wfExecCmd.Flag("stream", "Stream the phase output").Bool()

	wfChooseCmd   = workflowCmd.Command("choose", "Choose the next phase after a review")
	wfChooseID    = wfChooseCmd.Arg("id", "Workflow id").Required().String()
	wfChoosePhase = wfChooseCmd.Arg("phase", "Target phase").Required().String()

	wfShowCmd = workflowCmd.Command("show", "Show a workflow")
	wfShowID  = wfShowCmd.Arg("id", "Workflow id").Required().String()

	wfListCmd = workflowCmd.Command("list", "List workflows of the user")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newClient(*serverURL, *apiKey)

	var err error
	switch command {
	case personasCmd.FullCommand():
		err = c.listPersonas(ctx)
	case chatCmd.FullCommand():
		if *chatStream {
			err = c.streamChat(ctx, *chatPersona, *chatMessage, *chatScenario, *chatProject)
		} else {
			err = c.chat(ctx, *chatPersona, *chatMessage, *chatScenario, *chatProject)
		}
	case wfStartCmd.FullCommand():
		err = c.startWorkflow(ctx, *userID, *wfStartProject, *wfStartPrompt)
	case wfExecCmd.FullCommand():
		if *wfExecStream {
			err = c.streamWorkflow(ctx, *wfExecID, *wfExecMessage)
		} else {
			err = c.executePhase(ctx, *wfExecID, *wfExecMessage)
		}
	case wfChooseCmd.FullCommand():
		err = c.choosePhase(ctx, *wfChooseID, *wfChoosePhase)
	case wfShowCmd.FullCommand():
		err = c.showWorkflow(ctx, *wfShowID)
	case wfListCmd.FullCommand():
		err = c.listWorkflows(ctx, *userID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
