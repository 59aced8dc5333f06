package core

// prompts.go holds the text sent to the language model. Keeping these in one
// file makes them easy to tweak without touching the rest of the code.

import (
	"fmt"
	"strings"

	"clinical-intake/internal/intake"
	"clinical-intake/pkg"
)

const (
	// SystemPrompt frames the model as the author of a chart entry.
	SystemPrompt = "You are an experienced medical clinician writing professional patient histories and examination notes."

	// DefaultDepartment is used when a request names no department.
	DefaultDepartment = intake.GeneralDepartment
)

var departmentFocus = map[string]string{
	"pediatric": `Focus on:
- Age-appropriate history taking
- Developmental milestones if relevant
- Vaccination history
- Parent/guardian concerns
- Growth and feeding history
- School attendance and performance
- Pediatric vital signs interpretation`,
	"obstetrics-gynecology": `Focus on:
- Menstrual history (LMP, cycle regularity, flow)
- Obstetric history (gravida, para, abortions)
- Gynecological symptoms
- Contraceptive use
- Sexual history (if relevant)
- Pregnancy-related symptoms
- Pelvic examination findings`,
	"internal-medicine": `Focus on:
- Comprehensive systems review
- Chronic disease management
- Medication adherence
- Lifestyle factors
- Risk factor assessment
- General examination findings`,
	"cardiology": `Focus on:
- Cardiovascular symptoms (chest pain, palpitations, dyspnea)
- Exercise tolerance
- Risk factors (hypertension, diabetes, smoking, family history)
- Cardiac examination (heart sounds, murmurs, JVP, peripheral pulses)
- ECG findings if available`,
	"neurology": `Focus on:
- Neurological symptoms (headache, seizures, weakness, sensory changes)
- Cognitive function
- Cranial nerve examination
- Motor and sensory examination
- Reflexes and coordination
- Gait assessment`,
	"ophthalmology": `Focus on:
- Visual symptoms (blurred vision, pain, discharge)
- Eye examination findings
- Visual acuity
- Fundoscopy findings
- Pupillary responses`,
	"general": `Focus on:
- General medical history
- Systems review
- General examination
- Vital signs interpretation`,
}

// DepartmentFocus returns the focus list for a department, or the general one.
func DepartmentFocus(department string) string {
	if f, ok := departmentFocus[intake.NormalizeDepartment(department)]; ok {
		return f
	}
	return departmentFocus[DefaultDepartment]
}

// DisplayDepartment turns a department tag into a heading, e.g.
// "obstetrics-gynecology" becomes "Obstetrics & gynecology".
func DisplayDepartment(department string) string {
	if department == "" {
		return ""
	}
	d := strings.Replace(department, "-", " & ", 1)
	return strings.ToUpper(d[:1]) + d[1:]
}

// biodata renders the biodata block. Missing fields read "Not provided";
// vitals that were not taken are left out.
func biodata(info *pkg.BasicInfo) string {
	if info == nil {
		return ""
	}
	orDefault := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "Not provided"
		}
		return s
	}
	var vitals []string
	if info.Temp != "" {
		vitals = append(vitals, "Temp: "+info.Temp+"°C")
	}
	if info.BP != "" {
		vitals = append(vitals, "BP: "+info.BP+" mmHg")
	}
	if info.RR != "" {
		vitals = append(vitals, "RR: "+info.RR+"/min")
	}
	if info.SpO2 != "" {
		vitals = append(vitals, "SpO2: "+info.SpO2+"%")
	}
	if info.HR != "" {
		vitals = append(vitals, "HR: "+info.HR+" bpm")
	}

	var b strings.Builder
	b.WriteString("Biodata:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(info.Name))
	fmt.Fprintf(&b, "- Age: %s years\n", orDefault(info.Age))
	fmt.Fprintf(&b, "- Sex: %s\n", orDefault(info.Sex))
	fmt.Fprintf(&b, "- Vital Signs: %s\n", strings.Join(vitals, " "))
	return b.String()
}

// promptTemplate picks the narrative layout for a department. Every template
// takes the same arguments: display name, focus list, biodata, department tag
// and the JSON record.
func promptTemplate(department string) string {
	switch intake.NormalizeDepartment(department) {
	case "pediatric":
		return pediatricTemplate
	case "obstetrics-gynecology":
		return obstetricTemplate
	}
	return narrativeTemplate
}

const narrativeTemplate = `You are an experienced clinician writing a professional medical history and examination narrative.

Department: %s

%s

Convert the following structured patient data into a comprehensive, professional medical narrative including:

1. BIODATA
%s
2. PRESENTING COMPLAINT(S)
- List all presenting complaints clearly

3. HISTORY OF PRESENTING COMPLAINT (HPC)
- For each complaint, detail using the 5C framework:
  * Character: What is it like?
  * Course: Is it improving, worsening, or unchanged?
  * Chronology: When did it start? Duration?
  * Contributing factors: What makes it better or worse?
  * Consequences: Associated symptoms?

4. PAST MEDICAL HISTORY
- Previous illnesses, surgeries, hospitalizations

5. DRUG HISTORY
- Current medications, allergies

6. FAMILY HISTORY
- Relevant family medical history

7. SOCIAL HISTORY
- Occupation, lifestyle factors, travel history

8. REVIEW OF SYSTEMS
- Systematic review of body systems

9. PHYSICAL EXAMINATION
- General appearance
- Vital signs
- System-specific examination findings relevant to %s
- Any abnormal findings

Write the narrative in a clear, professional medical style as a clinician would document in a patient's chart. Be concise but comprehensive. Use proper medical terminology.

Structured data provided:
%s

Generate the complete history and examination narrative:`


const pediatricTemplate = `You are an expert pediatrician writing a clinical case presentation.

Department: %[1]s

%[2]s

Convert the following structured patient data into a well-formatted pediatric clinical history. Use these sections, each as a bold heading followed by flowing paragraphs:

**PATIENT IDENTIFICATION**
%[3]s
**PRESENTING COMPLAINT**
State each complaint and its duration.

**HISTORY OF PRESENTING COMPLAINT**
Describe the illness using the 5C model (character, course, chronology, contributing factors, consequences) as a natural clinical narrative.

**BIRTH HISTORY**
Antenatal period, mode of delivery, birth weight, neonatal period and complications.

**IMMUNIZATION HISTORY**
Vaccination status and any missed vaccines.

**FEEDING AND NUTRITIONAL HISTORY**
Breastfeeding, introduction of complementary feeds and current diet.

**DEVELOPMENTAL MILESTONES**
Gross motor, fine motor, language and social development, noting any delay.

**PAST MEDICAL HISTORY**
Previous illnesses, hospitalizations, surgeries, allergies and current medications.

**FAMILY AND SOCIAL HISTORY**
Relevant family history, home environment and caregiver support.

**REVIEW OF SYSTEMS**
General, respiratory, cardiovascular, gastrointestinal, genitourinary and neurological systems.

**CLINICAL SUMMARY**
A short paragraph on the key findings that will guide evaluation and management.

Do not use numbered lists or bullet points. Leave out what the data does not support rather than inventing it.

Structured data provided:
%[5]s

Generate the complete pediatric history:`

const obstetricTemplate = `You are an obstetrician and gynecologist writing a patient history.

Department: %[1]s

%[2]s

Convert the following structured patient data into a proper O&G history with these sections:

1. BIODATA
%[3]s
2. PRESENTING COMPLAINT(S)

3. HISTORY OF PRESENTING COMPLAINT
- Use the 5C framework for each complaint

4. MENSTRUAL HISTORY
- LMP, cycle length and regularity, flow, dysmenorrhea

5. OBSTETRIC HISTORY
- Gravidity and parity, miscarriages, complications of previous pregnancies

6. GYNECOLOGIC HISTORY
- STIs, cervical screening, contraception

7. PAST MEDICAL, SURGICAL AND DRUG HISTORY

8. FAMILY HISTORY

9. SOCIAL HISTORY

10. REVIEW OF SYSTEMS

Write in a clear, professional style as it would appear in the chart.

Structured data provided:
%[5]s

Generate the complete obstetric and gynecologic history:`
