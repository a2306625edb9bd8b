// Package agents provides the ready-made conversational flows of dialogmesh.
//
// The chat agent handles the everyday intents of a session: answering general
// questions, nudging a discussable subject toward a panel discussion, and
// keeping smalltalk polite. The discussion agent runs a full panel
// discussion: it plans topic and speakers with the model, gathers reference
// materials per speaker through the tool registry, streams every speaker's
// speech through the fair scheduler, and wraps up with a summary.
//
// Both constructors return a registry.Binding ready to be registered with an
// engine. Intent redirects (setup_discussion and start_discussion to the
// discussion agent) are left to the caller so a deployment can also run the
// chat agent standalone.
package agents
