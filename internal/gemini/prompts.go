package gemini

import "fmt"

// descriptionPrompt instructs the model to produce a purely textual,
// reproducible description of the hairstyle in the style image. Image output
// is explicitly forbidden at this stage.
const descriptionPrompt = `Write a prompt, don't generate any image.
Your job is to help AI to copy the hairstyle/haircut with the help of prompt.
Analyze the hairstyle in the provided image. Generate a highly detailed, descriptive text prompt suitable for an advanced image generation AI. This prompt should meticulously capture all key attributes of the hairstyle, including:

1.  **Overall Shape and Silhouette:** Describe the general form and outline of the hair on the head (e.g., rounded, tapered, voluminous, flat on top, swept back, side part, no part).
2.  **Length and Distribution:** Specify hair length at the top, sides, and back. Note how the length transitions.
3.  **Texture and Curl Pattern:** Detail the hair's natural texture (e.g., straight, wavy, curly, coily, frizzy) and, if applicable, the specific type and tightness of curls or waves. Mention its natural body or lack thereof.
4.  **Volume and Lift:** Indicate where the hair has volume (e.g., at the crown, all over, minimal) and how it achieves that lift.
5.  **Styling Elements:** Describe any specific styling (e.g., messy, sleek, combed, finger-combed, swept, tousled, structured, gelled).
6.  **Hairline and Edges:** Describe how the hair meets the forehead, temples, and neck (e.g., faded, sharp, natural, messy fringe).
7.  **Key Defining Features:** Highlight any unique or prominent characteristics that define this particular haircut or style.

The description should be purely observational and objective, avoiding subjective terms where possible. It must be specific enough that an AI, using *only* this description, could accurately reproduce the same hairstyle on a different person, ensuring the cut and style are applied in the same fashion and proportions relative to a human head.

Important: Do not generate an image. Provide only the detailed textual description, formatted as a direct prompt for an image generation system.`

// synthesisPromptTemplate applies the described hairstyle to the person's
// photo. The color rule deliberately overrides any color cues carried by the
// description.
const synthesisPromptTemplate = `Transform the hairstyle of the person in the provided image. The new hairstyle must precisely match the characteristics detailed in the "Hairstyle Description" provided below.

**Strict Application Guidelines:**

1.  **Full Hairstyle Transfer:** Apply the described hairstyle, including its exact shape, length, volume, and crucially, its specific texture and curl/wave pattern, onto the person's head.
2.  **Preserve Facial Identity:** Maintain the original facial features, skin tone, head shape, and all other non-hair-related aspects of the person in the image. Do not alter their identity.
3.  **Seamless Integration:** The new hairstyle must be seamlessly integrated. Ensure a natural-looking hairline, realistic hair flow, and appropriate layering that makes the hairstyle appear genuinely part of the person.
4.  **Match Environmental Lighting:** The lighting, shadows, and highlights on the new hairstyle must precisely match the existing ambient and directional lighting conditions present in the original image. The hair should look naturally lit within the scene.
5.  **Maintain Original Hair Color:** While adopting the new shape and texture, use the *original hair color* of the person from the input image. Do not introduce a different hair color from the description or any external source.
6.  **Realistic Fit:** The hairstyle should fit the person's head proportionally and naturally, as if they had just received that specific haircut and styling.
      Hairstyle Description:
      %s`

func synthesisPrompt(description string) string {
	return fmt.Sprintf(synthesisPromptTemplate, description)
}
