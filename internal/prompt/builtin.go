package prompt

// Template names.
const (
	CreateRepo     = "create-repo"
	UpdateRepo     = "update-repo"
	NudgeSystem    = "nudge-system"
	Nudge          = "nudge"
	NudgeFallback  = "nudge-fallback"
	DiagnoseSystem = "diagnose-system"
	Diagnose       = "diagnose"
	Proceed        = "proceed"
	SessionTitle   = "session-title"
)

// builtinTemplates maps template name to content.
var builtinTemplates = map[string]string{
	CreateRepo:     createRepoTemplate,
	UpdateRepo:     updateRepoTemplate,
	NudgeSystem:    nudgeSystemTemplate,
	Nudge:          nudgeTemplate,
	NudgeFallback:  nudgeFallbackTemplate,
	DiagnoseSystem: diagnoseSystemTemplate,
	Diagnose:       diagnoseTemplate,
	Proceed:        proceedTemplate,
	SessionTitle:   sessionTitleTemplate,
}

const createRepoTemplate = `Build a new project in this repository: {{title}}

{{#if description}}
## Idea
{{description}}
{{/if}}
{{#if source}}
Discovered via {{source}}.
{{/if}}
{{#if related}}
Note: this may overlap with the existing repository {{related}}. Keep the scope distinct.
{{/if}}

## Requirements
1. Create a working, minimal first version with a clear README
2. Add tests for the core behaviour
3. Add a CI workflow that runs the tests
4. Keep dependencies to what the project actually needs
5. Open a pull request with a short summary of what was built
`

const updateRepoTemplate = `Improve the existing repository {{repo}}.

{{#if title}}
## Inspiration
{{title}}
{{#if description}}
{{description}}
{{/if}}
{{/if}}

## Instructions
1. Read the code and README to understand the current state
2. Fix obvious bugs and outdated dependencies
3. Improve the README and add missing tests
4. Apply the inspiration above only where it fits the project
5. Open a pull request describing each change
`

const nudgeSystemTemplate = `You are supervising an autonomous coding agent. Reply with one or two short sentences the agent can act on. Never ask questions back. Tell it to make a reasonable decision and continue.`

const nudgeTemplate = `The coding agent working on {{repo}} is waiting for input.
{{#if activity}}

Recent activity:
{{activity}}
{{/if}}

Write the reply to send to the agent.`

const nudgeFallbackTemplate = `Please proceed with your best judgement. Make reasonable assumptions, finish the task, and open the pull request.`

const diagnoseSystemTemplate = `You diagnose stalled autonomous coding sessions. Answer with a JSON object: {"status": "recoverable" | "stuck" | "working", "reason": "<one sentence>"}.`

const diagnoseTemplate = `Session {{session}} on repository {{repo}} has shown no activity for {{idle}}.
Remote state: {{state}}
{{#if activity}}

Recent activity, oldest first:
{{activity}}
{{/if}}

Classify the session.`

const proceedTemplate = `You appear to have stalled. Please continue with the task from where you stopped and open the pull request when done.`

const sessionTitleTemplate = `{{action}}: {{repo}}`
